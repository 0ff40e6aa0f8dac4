package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/campus-kiosk/apptdesk/internal/appointment"
	"github.com/campus-kiosk/apptdesk/internal/config"
	"github.com/campus-kiosk/apptdesk/internal/email"
	"github.com/campus-kiosk/apptdesk/internal/inbox"
	"github.com/campus-kiosk/apptdesk/internal/notify"
	"github.com/campus-kiosk/apptdesk/internal/store"
	"github.com/campus-kiosk/apptdesk/internal/web"
)

var cfgFile string

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "apptdesk",
		Short: "Apptdesk - Campus appointment coordination service",
		Long: `Apptdesk coordinates appointments between students and staff.

Students book through the kiosk API; staff confirm through the admin
page or simply by replying to the notification email. Replies are
polled over IMAP, classified, and applied to the appointment
automatically.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.apptdesk/config.yaml)")

	// Add commands
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(addProfessorCmd())
	rootCmd.AddCommand(listProfessorsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long:  "Create a new configuration file with mail and polling settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func serveCmd() *cobra.Command {
	var port int
	var noPoller bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the appointment API and the reply poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, noPoller)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	cmd.Flags().BoolVar(&noPoller, "no-poller", false, "Serve HTTP only, do not poll the mailbox")

	return cmd
}

func pollCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the mailbox for appointment replies",
		Long: `Connect to the configured IMAP mailbox and scan for replies.

Each cycle scans staff replies to creation notifications, student
replies to reschedule suggestions, and then auto-rejects stale
requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Auto-reject stale pending appointments once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep()
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show appointment counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func addProfessorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-professor",
		Short: "Add a staff member to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddProfessor()
		},
	}
}

func listProfessorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-professors",
		Short: "List all staff members in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListProfessors()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)
	cfg := &config.Config{}

	fmt.Println("Apptdesk setup")
	fmt.Println()

	fmt.Println("📧 Mail Settings")
	fmt.Println()

	cfg.Mail.From = prompt(reader, "From address for notifications: ")
	provider := prompt(reader, "Outbound provider (smtp/resend/sendgrid) [smtp]: ")
	if provider == "" {
		provider = "smtp"
	}
	cfg.Mail.Provider = provider

	switch provider {
	case "smtp":
		fmt.Println()
		fmt.Println("Gmail SMTP Configuration:")
		fmt.Println("  (See https://support.google.com/accounts/answer/185833 for app password setup)")
		fmt.Println()
		cfg.Mail.SMTP.Host = "smtp.gmail.com"
		cfg.Mail.SMTP.Port = 465
		cfg.Mail.SMTP.UseTLS = true
		cfg.Mail.SMTP.Username = prompt(reader, "  Gmail address: ")
		cfg.Mail.SMTP.Password = prompt(reader, "  App password (16-character code): ")
	case "resend":
		cfg.Mail.Resend.APIKey = prompt(reader, "  Resend API key: ")
	case "sendgrid":
		cfg.Mail.SendGrid.APIKey = prompt(reader, "  SendGrid API key: ")
	}

	fmt.Println()
	fmt.Println("📥 Reply Polling (IMAP)")
	fmt.Println()

	cfg.Mail.IMAP.Email = prompt(reader, "IMAP mailbox address (blank to disable polling): ")
	if cfg.Mail.IMAP.Email != "" {
		cfg.Mail.IMAP.Password = prompt(reader, "IMAP app password: ")
		server := prompt(reader, "IMAP server [imap.gmail.com]: ")
		if server == "" {
			server = "imap.gmail.com"
		}
		cfg.Mail.IMAP.Server = server
		portStr := prompt(reader, "IMAP port [993]: ")
		cfg.Mail.IMAP.Port = 993
		if portStr != "" {
			if p, err := strconv.Atoi(portStr); err == nil {
				cfg.Mail.IMAP.Port = p
			}
		}
		cfg.Poller.Enabled = true
	}

	configPath := resolveConfigPath()
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("✅ Configuration saved to: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'apptdesk add-professor' to register staff members")
	fmt.Println("  2. Run 'apptdesk serve' to start the API and the reply poller")

	return nil
}

// buildService wires the store, engine, dispatcher and gateway from config.
func buildService(cfg *config.Config) (*store.Store, *appointment.Engine, *inbox.Poller, error) {
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	sender, err := email.NewSender(cfg.Mail)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize email sender: %w", err)
	}

	gateway := inbox.NewIMAPGateway(cfg.Mail.IMAP, sender)

	dispatcher, err := notify.NewDispatcher(gateway, cfg.Mail.From)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize templates: %w", err)
	}

	engine := appointment.NewEngine(st, dispatcher, cfg.Poller.StaleAfter())
	poller := inbox.NewPoller(gateway, engine, st, cfg.Poller)

	return st, engine, poller, nil
}

func runServe(port int, noPoller bool) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if port != 0 {
		cfg.HTTP.Port = port
	}

	st, engine, poller, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pollingEnabled := cfg.Poller.Enabled && !noPoller
	if pollingEnabled {
		if err := cfg.ValidateIMAP(); err != nil {
			return fmt.Errorf("polling enabled but mailbox misconfigured: %w", err)
		}
		go poller.Run(ctx)
	} else {
		fmt.Println("Reply polling disabled; staff must confirm through the admin page.")
		poller = nil
	}

	server := web.NewServer(cfg, st, engine, poller)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	return server.Start()
}

func runPoll(once bool) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.ValidateIMAP(); err != nil {
		return fmt.Errorf("mailbox not configured: %w", err)
	}

	st, _, poller, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if once {
		stats := poller.RunOnce(ctx)
		fmt.Printf("Processed %d staff replies, %d student replies, auto-rejected %d\n",
			stats.StaffReplies, stats.StudentReplies, stats.AutoRejected)
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nStopping poller...")
		cancel()
	}()

	poller.Run(ctx)
	return nil
}

func runSweep() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	st, engine, _, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	swept, err := engine.SweepStale(context.Background())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Auto-rejected %d stale appointment(s)\n", swept)
	return nil
}

func runStatus() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	counts, err := st.CountByStatus(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read counts: %w", err)
	}

	fmt.Println("Appointments:")
	for _, status := range []appointment.Status{
		appointment.StatusPending,
		appointment.StatusRescheduled,
		appointment.StatusAccepted,
		appointment.StatusRejected,
	} {
		fmt.Printf("  %-20s %d\n", status, counts[status])
	}
	return nil
}

func runAddProfessor() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	reader := bufio.NewReader(os.Stdin)

	prof := &appointment.Professor{
		ID:          uuid.New().String(),
		Title:       prompt(reader, "Title (e.g., Prof., Dr.): "),
		FirstName:   prompt(reader, "First name: "),
		LastName:    prompt(reader, "Last name: "),
		Email:       prompt(reader, "Email: "),
		OfficeHours: prompt(reader, "Office hours (optional): "),
	}
	if prof.FirstName == "" || prof.LastName == "" || prof.Email == "" {
		return fmt.Errorf("first name, last name and email are required")
	}

	if err := st.AddProfessor(context.Background(), prof); err != nil {
		return fmt.Errorf("failed to add professor: %w", err)
	}

	fmt.Println()
	fmt.Printf("✅ Added %s (id %s)\n", prof.DisplayName(), prof.ID)
	return nil
}

func runListProfessors() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	profs, err := st.ListProfessors(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list professors: %w", err)
	}

	if len(profs) == 0 {
		fmt.Println("No professors registered. Run 'apptdesk add-professor' first.")
		return nil
	}

	for _, p := range profs {
		fmt.Printf("%-36s  %-30s  %s\n", p.ID, p.DisplayName(), p.Email)
	}
	return nil
}

func prompt(reader *bufio.Reader, message string) string {
	fmt.Print(message)
	input, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(input)
}
