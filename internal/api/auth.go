package api

import (
	"errors"   // errors.Is for gorm sentinels
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation

	"settlement_ledger/internal/domain" // Importing domain models
	"settlement_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// RegisterRequest creates a payee account
type RegisterRequest struct {
	Username string      `json:"username" binding:"required"` // Alphabetic username
	Password string      `json:"password" binding:"required"` // 8-15 characters
	Role     domain.Role `json:"role" binding:"required"`     // seller or delivery_agent
}

// LoginRequest exchanges credentials for a token
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries the issued JWT
type AuthResponse struct {
	Token string `json:"token"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z]+$`)

// isValidUsername checks if the username contains only alphabetic characters
func isValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// isValidPassword checks if the password length is between 8 and 15 characters
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 15
}

// RegisterHandler creates a seller or delivery agent. Admins are provisioned out of band.
func RegisterHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		if !isValidUsername(req.Username) {
			badRequest(c, "Username must be alphabetic only")
			return
		}
		if !isValidPassword(req.Password) {
			badRequest(c, "Password must be 8-15 characters")
			return
		}
		if req.Role != domain.RoleSeller && req.Role != domain.RoleDeliveryAgent {
			badRequest(c, "Role must be seller or delivery_agent")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respond(c, 0, nil, domain.Infrastructure("hash password", err), "")
			return
		}
		// Lowercase username to ensure uniqueness
		user := domain.User{Username: strings.ToLower(req.Username), Password: string(hash), Role: req.Role}
		if err := db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
			logrus.WithFields(logrus.Fields{
				"username": user.Username,
				"error":    err.Error(),
			}).Warn("Registration failed")
			badRequest(c, "Username already exists")
			return
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User registered")
		c.JSON(http.StatusCreated, domain.Result{Success: true, Message: "User registered successfully", Data: user})
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		var user domain.User
		err := db.WithContext(c.Request.Context()).Where("username = ?", strings.ToLower(req.Username)).First(&user).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			respond(c, 0, nil, domain.Infrastructure("load user", err), "")
			return
		}
		// Same answer for unknown users and wrong passwords
		if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, domain.Result{Message: "Invalid credentials"})
			return
		}
		token, err := utils.GenerateJWT(user.ID, string(user.Role), jwtSecret)
		if err != nil {
			respond(c, 0, nil, domain.Infrastructure("sign token", err), "")
			return
		}
		c.JSON(http.StatusOK, domain.Result{Success: true, Message: "Login successful", Data: AuthResponse{Token: token}})
	}
}
