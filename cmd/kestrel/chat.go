package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomharwin/kestrel/internal/chatclient"
)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	quiet := fs.Bool("quiet", false, "Suppress the terminal bell on incoming messages")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dataDir, err := chatclient.DefaultDataDir()
	if err != nil {
		return err
	}
	creds, err := chatclient.LoadCredentials(dataDir)
	if err != nil {
		return err
	}

	bus := chatclient.NewBus()
	conn := chatclient.NewConnection(creds.ServerURL, bus)
	if *quiet {
		conn.SetNotifier(chatclient.NopNotifier{})
	}
	rest := chatclient.NewRESTClient(creds.ServerURL, func() string { return creds.Token })
	session := chatclient.NewSession(conn, rest, creds.User.ID, creds.User.Role)

	// Print incoming traffic ahead of the prompt.
	printMessage := func(ev chatclient.Event) {
		if ev.Message != nil {
			fmt.Printf("\r[%s] %s: %s\n> ", ev.Message.SentAt.Format("15:04"), ev.Message.SenderName, ev.Message.Content)
		}
	}
	if creds.User.Role == chatclient.RoleAdmin {
		bus.On(chatclient.EventNewUserMessage, printMessage)
	} else {
		bus.On(chatclient.EventNewAdminMessage, printMessage)
	}
	bus.On(chatclient.EventConnectionChanged, func(ev chatclient.Event) {
		if ev.Connected {
			fmt.Print("\r(connected)\n> ")
		} else {
			fmt.Print("\r(connection lost, retrying...)\n> ")
		}
	})

	ctx := context.Background()
	if err := session.Open(ctx, creds.Token); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		session.Close()
		conn.Stop()
	}()

	fmt.Printf("Connected as %s (%s). Type /help for commands.\n", creds.User.Name, creds.User.Role)
	printConversations(session)

	return inputLoop(ctx, session)
}

func printConversations(session *chatclient.Session) {
	convs := session.Store().Conversations()
	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		if session.Role() == chatclient.RoleUser {
			fmt.Println("Admins available:")
			for i, admin := range session.Admins() {
				fmt.Printf("  %d. %s\n", i+1, admin.Name)
			}
		}
		return
	}
	fmt.Println("Conversations:")
	for i, conv := range convs {
		marker := " "
		if conv.Online {
			marker = "*"
		}
		badge := ""
		if conv.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("  %d.%s %s%s\n", i+1, marker, conv.ParticipantName, badge)
	}
}

func inputLoop(ctx context.Context, session *chatclient.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	var activeConv string
	var activeAdmin string

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit" || line == "/q":
			return nil

		case line == "/help":
			fmt.Println("  /list          list conversations")
			fmt.Println("  /open <n>      open conversation n")
			fmt.Println("  /start <n>     start a conversation with admin n (users only)")
			fmt.Println("  /quit          exit")
			fmt.Println("  anything else  send as a message")

		case line == "/list":
			printConversations(session)

		case strings.HasPrefix(line, "/open "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			convs := session.Store().Conversations()
			if err != nil || n < 1 || n > len(convs) {
				fmt.Println("No such conversation")
				break
			}
			conv := convs[n-1]
			activeConv = conv.ID
			activeAdmin = conv.ParticipantID
			session.LoadMessages(ctx, conv.ID)
			fmt.Printf("--- %s ---\n", conv.ParticipantName)
			for _, msg := range session.Store().Messages() {
				fmt.Printf("[%s] %s: %s\n", msg.SentAt.Format("15:04"), msg.SenderName, msg.Content)
			}

		case strings.HasPrefix(line, "/start "):
			if session.Role() != chatclient.RoleUser {
				fmt.Println("Only users start conversations; open one instead")
				break
			}
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/start ")))
			admins := session.Admins()
			if err != nil || n < 1 || n > len(admins) {
				fmt.Println("No such admin")
				break
			}
			activeConv = ""
			activeAdmin = admins[n-1].ID
			fmt.Printf("--- new conversation with %s ---\n", admins[n-1].Name)

		case line == "":
			// Ignore

		default:
			var sendErr error
			if session.Role() == chatclient.RoleAdmin {
				if activeConv == "" {
					fmt.Println("Open a conversation first: /open <n>")
					break
				}
				sendErr = session.SendReply(ctx, activeConv, line)
			} else {
				if activeAdmin == "" {
					fmt.Println("Pick an admin first: /start <n> or /open <n>")
					break
				}
				sendErr = session.SendMessage(ctx, activeAdmin, line)
			}
			if sendErr != nil {
				fmt.Printf("Send failed: %v\n", sendErr)
				break
			}
			// Give the confirmation push a beat before re-prompting.
			time.Sleep(50 * time.Millisecond)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
