package main

import (
	"fmt"
	"os"
)

const version = "0.1.0-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, "Kestrel - Support Chat Platform\n\n")
	fmt.Fprintf(os.Stderr, "Usage: kestrel <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the chat server\n")
	fmt.Fprintf(os.Stderr, "  login     Log in to a chat server and save the credential\n")
	fmt.Fprintf(os.Stderr, "  logout    Discard the saved credential\n")
	fmt.Fprintf(os.Stderr, "  chat      Open an interactive chat session\n")
	fmt.Fprintf(os.Stderr, "  admin     Manage accounts on the server host\n")
	fmt.Fprintf(os.Stderr, "  status    Show login state and unread count\n")
	fmt.Fprintf(os.Stderr, "  version   Show version and exit\n")
	fmt.Fprintf(os.Stderr, "  help      Show this help message\n")
	fmt.Fprintf(os.Stderr, "\nRun 'kestrel <command> --help' for more information on a command.\n")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "login":
		err = runLogin(os.Args[2:])
	case "logout":
		err = runLogout(os.Args[2:])
	case "chat":
		err = runChat(os.Args[2:])
	case "admin":
		err = runAdmin(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("Kestrel v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nRun 'kestrel help' for usage\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
