package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/luis-arellano/simple-google-docs/client"
	"github.com/luis-arellano/simple-google-docs/config"
	"github.com/luis-arellano/simple-google-docs/gist"
	"github.com/luis-arellano/simple-google-docs/pkg/logger"
	"github.com/luis-arellano/simple-google-docs/socket"
	"github.com/luis-arellano/simple-google-docs/store"
)

var (
	serverURL string
	storeFile string
)

func main() {
	logger.Init()
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "collab",
		Short: "Terminal client for the collaboration server",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", cfg.ServerURL, "websocket URL of the collaboration server")
	rootCmd.PersistentFlags().StringVar(&storeFile, "store", cfg.StoreFile, "path of the local document store")

	rootCmd.AddCommand(newEditCmd(), newListCmd(), newGistsCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newEditCmd joins a document and treats each stdin line as a full-content
// edit, printing edits and presence changes from other participants.
func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <document-id>",
		Short: "Join a document and edit it from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]

			ch := client.NewChannel(serverURL)
			rec := client.NewReconciler(ch, store.NewFileStore(storeFile))

			ch.OnContentUpdate(wrapContent(rec, func(msg socket.ContentUpdatedMessage) {
				fmt.Printf("[%s] content: %s\n", msg.UserID, msg.Content)
			}))
			ch.OnUserJoined(wrapPresence(rec, "joined"))
			ch.OnUserLeft(wrapPresence(rec, "left"))
			ch.OnDisconnected(func() {
				fmt.Println("disconnected from server")
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
			defer cancel()
			if err := ch.Connect(ctx); err != nil {
				return err
			}
			defer ch.Disconnect()

			if err := rec.Open(docID); err != nil {
				return err
			}
			fmt.Printf("joined %s as %s; type lines to edit, Ctrl-D to quit\n", docID, ch.UserID())

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if err := rec.SetContent(scanner.Text()); err != nil {
					return err
				}
			}
			rec.Close()
			return scanner.Err()
		},
	}
}

// wrapContent keeps the reconciler applying updates while also printing
// them: the channel has one handler slot per kind, so the CLI chains its
// printing onto the reconciler's apply instead of registering twice.
func wrapContent(rec *client.Reconciler, show func(socket.ContentUpdatedMessage)) func(socket.ContentUpdatedMessage) {
	apply := rec.ApplyContentUpdate
	return func(msg socket.ContentUpdatedMessage) {
		apply(msg)
		show(msg)
	}
}

func wrapPresence(rec *client.Reconciler, verb string) func(socket.PresenceMessage) {
	var apply func(socket.PresenceMessage)
	if verb == "joined" {
		apply = rec.ApplyUserJoined
	} else {
		apply = rec.ApplyUserLeft
	}
	return func(msg socket.PresenceMessage) {
		apply(msg)
		fmt.Printf("* %s %s\n", msg.UserID, verb)
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents in the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := store.NewFileStore(storeFile).List()
			if err != nil {
				return err
			}
			for _, doc := range docs {
				fmt.Printf("%s  %-30q  %s\n", doc.ID, doc.Title, doc.LastModified.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newGistsCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gists <username>",
		Short: "List a user's public gists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gists, err := gist.NewClient(cfg.GistAPIBase).FetchByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, g := range gists {
				fmt.Printf("%s  %d files  %s\n", g.ID, len(g.Files), g.Description)
			}
			return nil
		},
	}
	return cmd
}
