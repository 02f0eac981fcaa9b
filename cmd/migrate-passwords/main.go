// Command migrate-passwords hashes operator passwords that were stored in
// plain text, for example by a manual INSERT.
package main

import (
	"log"
	"strings"

	"pln-staging-api/config"
	"pln-staging-api/controllers"
	"pln-staging-api/models"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	config.InitDB()

	var users []models.User
	if err := config.DB.Find(&users).Error; err != nil {
		log.Fatal("Failed to fetch operators:", err)
	}

	migrated := 0
	for _, user := range users {
		// bcrypt hashes start with $2
		if strings.HasPrefix(user.Password, "$2") {
			continue
		}

		hashedPassword, err := controllers.HashPassword(user.Password)
		if err != nil {
			log.Printf("Failed to hash password for operator %s: %v\n", user.Email, err)
			continue
		}

		if err := config.DB.Model(&user).Update("password", hashedPassword).Error; err != nil {
			log.Printf("Failed to update password for operator %s: %v\n", user.Email, err)
			continue
		}

		log.Printf("Hashed password for operator %s\n", user.Email)
		migrated++
	}

	log.Printf("Password migration completed, %d of %d operator(s) updated", migrated, len(users))
}
