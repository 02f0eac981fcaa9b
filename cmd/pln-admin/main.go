// Command pln-admin manages the access lists, terms of use and operator
// accounts of the staging server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"pln-staging-api/config"
	"pln-staging-api/controllers"
	"pln-staging-api/models"
	"pln-staging-api/services"
	"pln-staging-api/utils"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// fixtureBlacklist is loaded by seed-blacklist for development databases.
var fixtureBlacklist = []string{
	"AC54ED1A-9795-4EED-94FD-D80CB62E0C84",
	"B156FACD-5210-4111-B4C2-D5C0C348D93A",
	"2DE4DC03-3E02-43D3-A088-E7536743C083",
	"A13C33E6-CDC4-4D09-BB62-1BE3B0E74A0A",
}

const usage = `usage: pln-admin <command> [flags]

commands:
  whitelist       -uuid UUID [-comment TEXT]
  blacklist       -uuid UUID [-comment TEXT]
  remove          -uuid UUID
  terms-set       -key KEY -content TEXT [-weight N]
  terms-delete    -key KEY
  create-operator -email EMAIL -password PASSWORD [-name NAME] [-admin]
  seed-blacklist
  migrate
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	config.InitDB()

	user := os.Getenv("USER")
	if user == "" {
		user = "console"
	}
	ctx := context.WithValue(context.Background(), models.HistoryUserKey{}, user)

	if err := run(ctx, config.DB, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, db *gorm.DB, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	var (
		uuid     = fs.String("uuid", "", "journal UUID")
		comment  = fs.String("comment", "", "reason for the entry")
		key      = fs.String("key", "", "term key code")
		content  = fs.String("content", "", "term text")
		weight   = fs.Int("weight", 0, "term display order")
		email    = fs.String("email", "", "operator email")
		name     = fs.String("name", "", "operator name")
		password = fs.String("password", "", "operator password")
		admin    = fs.Bool("admin", false, "grant the admin role")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	policy := services.NewAccessPolicy(db, false)
	terms := services.NewTermsService(db)

	switch command {
	case "whitelist", "blacklist":
		if *uuid == "" {
			return errors.New("-uuid is required")
		}
		add := policy.Whitelist
		if command == "blacklist" {
			add = policy.Blacklist
		}
		if err := add(ctx, *uuid, utils.SanitizeInput(*comment)); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", models.NormalizeUUID(*uuid), command+"ed")
	case "remove":
		if *uuid == "" {
			return errors.New("-uuid is required")
		}
		return policy.Remove(ctx, *uuid)
	case "terms-set":
		if *key == "" || strings.TrimSpace(*content) == "" {
			return errors.New("-key and -content are required")
		}
		term, err := terms.Set(ctx, *key, *content, *weight)
		if err != nil {
			return errors.New(services.ErrorMessage(err))
		}
		fmt.Printf("term %s saved (id %d)\n", term.KeyCode, term.ID)
	case "terms-delete":
		if *key == "" {
			return errors.New("-key is required")
		}
		if err := terms.Delete(ctx, *key); err != nil {
			return errors.New(services.ErrorMessage(err))
		}
	case "create-operator":
		return createOperator(ctx, db, *email, *name, *password, *admin)
	case "seed-blacklist":
		for _, id := range fixtureBlacklist {
			if err := policy.Blacklist(ctx, id, "development fixture"); err != nil {
				return err
			}
		}
		fmt.Printf("%d blacklist entries seeded\n", len(fixtureBlacklist))
	case "migrate":
		return models.AutoMigrate(db)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func createOperator(ctx context.Context, db *gorm.DB, email, name, password string, admin bool) error {
	if !utils.ValidateEmail(email) {
		return fmt.Errorf("invalid email %q", email)
	}
	if ok, msg := utils.ValidatePassword(password); !ok {
		return errors.New(msg)
	}
	hashed, err := controllers.HashPassword(password)
	if err != nil {
		return err
	}
	role := models.RoleOperator
	if admin {
		role = models.RoleAdmin
	}
	user := models.User{Email: email, Name: name, Password: hashed, RoleID: role, Enabled: true}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("operator %s already exists", email)
		}
		return err
	}
	fmt.Printf("operator %s created (id %d)\n", user.Email, user.ID)
	return nil
}
