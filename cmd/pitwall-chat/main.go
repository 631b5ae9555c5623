package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/apexgrid/pitwall/internal/nav"
	"github.com/apexgrid/pitwall/internal/profile"
	"github.com/apexgrid/pitwall/plugin/llm"
	"github.com/apexgrid/pitwall/session"
	"github.com/apexgrid/pitwall/store"
	"github.com/apexgrid/pitwall/store/db"
)

// pitwall-chat is a terminal client for the chat gateway. It drives the same
// session controller the dashboard uses, so streaming, titles and
// conversation switching behave exactly like the web UI.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	instanceProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    "./pitwall_chat.db",
		Data:   ".",
	}
	instanceProfile.FromEnv()

	dbDriver, err := db.NewDriver(instanceProfile)
	if err != nil {
		log.Fatalf("Failed to create db driver: %v", err)
	}

	storeInstance := store.New(dbDriver)
	ctx := context.Background()
	if err := storeInstance.Hydrate(ctx); err != nil {
		log.Fatalf("Failed to hydrate store: %v", err)
	}
	defer storeInstance.Close()

	gateway := fmt.Sprintf("http://localhost:%d/api/chat", port(instanceProfile))
	transport := llm.NewClient(gateway, instanceProfile.ChatModel, instanceProfile.ChatTemperature, instanceProfile.ChatMaxTokens)

	history := nav.NewHistory()
	controller := session.NewController(storeInstance, transport, history)
	history.OnChange(func(string) { controller.Resync(ctx) })
	controller.OnRender(func() { renderLast(controller) })
	controller.Bind(ctx, "")

	fmt.Println("pitwall chat - /list to see conversations, /open <id> to switch, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/list":
			for _, conv := range storeInstance.ListAll() {
				fmt.Printf("  %s  %s\n", conv.ID, conv.Title)
			}
		case strings.HasPrefix(line, "/open "):
			history.NavigateTo(nav.ConversationPath(strings.TrimPrefix(line, "/open ")))
		case line == "":
			continue
		default:
			if err := controller.SendMessage(ctx, line); err != nil {
				log.Printf("send failed: %v", err)
			}
			fmt.Println()
		}
	}
}

// renderLast paints the streaming assistant message in place.
func renderLast(controller *session.Controller) {
	msgs := controller.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role == store.RoleAssistant {
		fmt.Printf("\r%s", last.Content)
	}
}

func port(p *profile.Profile) int {
	if p.Port != 0 {
		return p.Port
	}
	return 8230
}
