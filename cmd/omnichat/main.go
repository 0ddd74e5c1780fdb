package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/omnichat/pkg/chatclient"
)

type chatFlags struct {
	configPath   string
	server       string
	wsURL        string
	username     string
	email        string
	conversation string
	logLevel     string
}

func main() {
	flags := &chatFlags{}

	rootCmd := &cobra.Command{
		Use:   "omnichat",
		Short: "Realtime chat client for an OmniChat service",
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/omnichat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "zerolog level (trace|debug|info|warn|error)")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect and chat on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			return runChat(cmd.Context(), cfg)
		},
	}
	chatCmd.Flags().StringVar(&flags.server, "server", "", "service base URL")
	chatCmd.Flags().StringVar(&flags.wsURL, "ws-url", "", "websocket endpoint override")
	chatCmd.Flags().StringVar(&flags.username, "username", "", "display name")
	chatCmd.Flags().StringVar(&flags.email, "email", "", "contact email")
	chatCmd.Flags().StringVar(&flags.conversation, "conversation", "", "conversation id to activate")
	rootCmd.AddCommand(chatCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func resolveConfig(flags *chatFlags) (chatclient.Config, error) {
	path := flags.configPath
	if path == "" {
		if p, err := chatclient.DefaultConfigPath(); err == nil {
			path = p
		}
	}
	cfg, err := chatclient.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if flags.server != "" {
		cfg.ServerURL = flags.server
	}
	if flags.wsURL != "" {
		cfg.WebsocketURL = flags.wsURL
	}
	if flags.username != "" {
		cfg.Username = flags.username
	}
	if flags.email != "" {
		cfg.Email = flags.email
	}
	if flags.conversation != "" {
		cfg.Conversation = flags.conversation
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if cfg.Username == "" {
		return cfg, errors.New("username is required (flag or config)")
	}
	if cfg.Email == "" {
		cfg.Email = cfg.Username + "@omnichat.local"
	}
	return cfg, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func runChat(ctx context.Context, cfg chatclient.Config) error {
	gateway, err := chatclient.NewGateway(chatclient.GatewayConfig{
		BaseURL: cfg.ServerURL,
		Logger:  log.Logger,
	})
	if err != nil {
		return err
	}
	transport, err := chatclient.NewWSTransport(chatclient.WSTransportConfig{
		URL:    cfg.ResolveWebsocketURL(),
		Logger: log.Logger,
	})
	if err != nil {
		return err
	}
	store, err := chatclient.NewSessionStore(chatclient.SessionStoreConfig{
		Fetcher:   gateway,
		Transport: transport,
		Logger:    log.Logger,
	})
	if err != nil {
		return err
	}

	user, conv, err := setupIdentity(ctx, gateway, cfg)
	if err != nil {
		return err
	}
	log.Info().Str("user_id", user.ID).Str("conv_id", conv.ID).Msg("session ready")

	debouncer := chatclient.NewTypingDebouncer(chatclient.TypingDebouncerConfig{
		Emitter: transport,
		User:    user,
		Logger:  log.Logger,
	})
	debouncer.SetConversation(conv.ID)

	g, ctx := errgroup.WithContext(ctx)
	// subscribe before dialing so the first connected event is not missed
	events, err := transport.Events(ctx)
	if err != nil {
		return err
	}
	g.Go(func() error { return ignoreCancel(transport.Run(ctx)) })
	g.Go(func() error { return ignoreCancel(store.Run(ctx, events)) })
	g.Go(func() error { return renderLoop(ctx, store) })

	if convs, err := gateway.ListConversations(ctx); err == nil {
		store.SetConversations(convs)
	} else {
		log.Warn().Err(err).Msg("listing conversations failed")
	}
	if err := store.InitializeSession(ctx, user, conv); err != nil {
		log.Warn().Err(err).Msg("initial history fetch failed, continuing with empty log")
	}

	g.Go(func() error { return inputLoop(ctx, gateway, store, debouncer, user) })
	return g.Wait()
}

// setupIdentity creates the user and the initial conversation when they do
// not exist yet. A username conflict falls back to the existing identity.
func setupIdentity(ctx context.Context, gateway *chatclient.Gateway, cfg chatclient.Config) (chatclient.User, chatclient.Conversation, error) {
	user, err := gateway.CreateUser(ctx, cfg.Username, cfg.Email)
	if err != nil {
		if !errors.Is(err, chatclient.ErrConflict) {
			return chatclient.User{}, chatclient.Conversation{}, err
		}
		users, listErr := gateway.ListUsers(ctx)
		if listErr != nil {
			return chatclient.User{}, chatclient.Conversation{}, listErr
		}
		for _, u := range users {
			if u.Username == cfg.Username {
				user = u
				break
			}
		}
		if user.ID == "" {
			return chatclient.User{}, chatclient.Conversation{}, err
		}
	}

	if cfg.Conversation != "" {
		convs, err := gateway.ListConversations(ctx)
		if err != nil {
			return user, chatclient.Conversation{}, err
		}
		for _, c := range convs {
			if c.ID == cfg.Conversation {
				return user, c, nil
			}
		}
		return user, chatclient.Conversation{}, errors.Wrap(chatclient.ErrNotFound, cfg.Conversation)
	}
	conv, err := gateway.CreateConversation(ctx, cfg.Username+"'s chat", []string{user.ID})
	if err != nil {
		return user, chatclient.Conversation{}, err
	}
	return user, conv, nil
}

func inputLoop(ctx context.Context, gateway *chatclient.Gateway, store *chatclient.SessionStore, debouncer *chatclient.TypingDebouncer, user chatclient.User) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		debouncer.Flush()

		switch {
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/switch "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/switch "))
			if err := store.SwitchConversation(ctx, target); err != nil {
				log.Warn().Err(err).Msg("switch failed")
				continue
			}
			debouncer.SetConversation(target)
		case strings.HasPrefix(line, "/ai "):
			prompt := strings.TrimSpace(strings.TrimPrefix(line, "/ai "))
			draft := draftFor(store, user, prompt)
			if _, err := gateway.PostMessage(ctx, draft); err != nil {
				log.Warn().Err(err).Msg("post failed")
				continue
			}
			if err := gateway.RequestAIReply(ctx, draft); err != nil {
				log.Warn().Err(err).Msg("ai request failed")
			}
		default:
			if _, err := gateway.PostMessage(ctx, draftFor(store, user, line)); err != nil {
				log.Warn().Err(err).Msg("post failed")
			}
		}
	}
	return scanner.Err()
}

func draftFor(store *chatclient.SessionStore, user chatclient.User, content string) chatclient.MessageDraft {
	return chatclient.MessageDraft{
		Content:        content,
		SenderID:       user.ID,
		SenderUsername: user.Username,
		ConversationID: store.ActiveConversationID(),
	}
}

// renderLoop is the thinnest possible presentation layer: print what
// changed since the previous snapshot.
func renderLoop(ctx context.Context, store *chatclient.SessionStore) error {
	printed := 0
	lastConv := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-store.Updates():
		}
		snap := store.Snapshot()
		if snap.ActiveConversationID != lastConv {
			lastConv = snap.ActiveConversationID
			printed = 0
			fmt.Printf("--- %s ---\n", lastConv)
		}
		for ; printed < len(snap.Messages); printed++ {
			m := snap.Messages[printed]
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.SenderUsername, m.Content)
		}
		if len(snap.TypingUsers) > 0 {
			names := make([]string, 0, len(snap.TypingUsers))
			for _, sig := range snap.TypingUsers {
				names = append(names, sig.Username)
			}
			fmt.Printf("(%s typing...)\n", strings.Join(names, ", "))
		}
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
