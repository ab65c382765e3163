package domain

import "errors" // errors.As for wrapped domain errors

// Result is the structured outcome handed to collaborators.
type Result struct {
	Success bool      `json:"success"`        // Whether the operation committed
	Message string    `json:"message"`        // Human readable reason
	Kind    ErrorKind `json:"kind,omitempty"` // Failure class when Success is false
	Data    any       `json:"data"`           // Operation payload
}

// ResultOf folds an operation's return values into a Result.
// Infrastructure causes are not leaked into the message.
func ResultOf(data any, err error, okMessage string) Result {
	if err == nil {
		return Result{Success: true, Message: okMessage, Data: data}
	}
	var de *Error
	if errors.As(err, &de) {
		return Result{Success: false, Message: de.Message, Kind: de.Kind}
	}
	return Result{Success: false, Message: "something went wrong", Kind: KindInfrastructure}
}
