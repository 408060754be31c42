package main

import (
	"log"

	"ballouchi/internal/app"
)

// @title                       Ballouchi Account API
// @version                     1.0
// @description                 Signup, email verification, sign-in and account management.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
