package main

import (
	"fmt"
	"os"
	"time"

	"parley/server/internal/registry"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	subcmd := args[0]
	switch subcmd {
	case "version":
		fmt.Printf("parley server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "users":
		return cliUsers(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	default:
		return false
	}
}

func cliStatus(dbPath string) bool {
	st, err := registry.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening registry: %v\n", err)
		os.Exit(1)
	}

	users, err := st.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Registry: %s\n", dbPath)
	fmt.Printf("Users: %d\n", len(users))
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliUsers(args []string, dbPath string) bool {
	st, err := registry.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening registry: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 0 || args[0] == "list" {
		users, err := st.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(users) == 0 {
			fmt.Println("No users registered.")
			return true
		}
		for _, u := range users {
			fmt.Printf("  %s  last visit %s\n", u.Username, time.Unix(u.LastVisit, 0).Format("2006-01-02 15:04:05"))
		}
		return true
	}

	if args[0] == "add" && len(args) > 2 {
		nick, password := args[1], args[2]
		u, err := st.Register(nick, password, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created user %q\n", u.Username)
		return true
	}

	fmt.Fprintf(os.Stderr, "Usage: server users [list|add <nickname> <password>]\n")
	os.Exit(1)
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st, err := registry.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening registry: %v\n", err)
		os.Exit(1)
	}

	outPath := "parley-backup.json"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Registry backed up to %s\n", outPath)
	return true
}
