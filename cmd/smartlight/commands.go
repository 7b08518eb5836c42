package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/parsakn/smartlight-client/internal/http"
	"github.com/parsakn/smartlight-client/internal/failure"
	"github.com/parsakn/smartlight-client/internal/http/handlers"
	"github.com/parsakn/smartlight-client/internal/model"
	"github.com/parsakn/smartlight-client/internal/session"
	"github.com/parsakn/smartlight-client/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer telemetry.RecoverPanic()
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			server := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           httpapi.NewRouter(handlers.New(a.session, a.logger)),
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.session.Start(gctx) })
			g.Go(func() error { return httpapi.RunServer(gctx, server, a.logger) })

			a.logger.Info("smartlight starting", "version", version, "api", a.cfg.APIBaseURL, "addr", a.cfg.HTTPAddr)
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			a.logger.Info("smartlight stopped")
			return err
		},
	}
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Login(cmd.Context(), username, password); err != nil {
				return userError(err, session.LoginFailed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVarP(&password, "password", "p", os.Getenv("SMARTLIGHT_PASSWORD"), "Account password")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func registerCmd() *cobra.Command {
	var req model.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in with it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if req.Password2 == "" {
				req.Password2 = req.Password
			}
			if err := a.session.Register(cmd.Context(), req); err != nil {
				return userError(err, session.RegisterFailed)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s\n", req.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "Phone number")
	cmd.Flags().StringVarP(&req.Password, "password", "p", os.Getenv("SMARTLIGHT_PASSWORD"), "Account password")
	cmd.Flags().StringVar(&req.Password2, "confirm-password", "", "Password confirmation (defaults to --password)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func lampsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lamps",
		Short: "List lamps with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			lamps, err := a.session.Lamps(cmd.Context())
			if err != nil {
				return userError(err, "")
			}
			return writeLamps(cmd.OutOrStdout(), lamps)
		},
	}
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <lamp-id>",
		Short: "Switch a lamp on or off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lamp id %q", args[0])
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.session.ToggleLamp(cmd.Context(), id)
			if err != nil {
				return errors.New(result.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			writeStatus(cmd.OutOrStdout(), a.cfg.APIBaseURL, a.session.Authenticated())
			return nil
		},
	}
}

// userError turns err into the message a user would see in the UI.
func userError(err error, fallback string) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return errors.New("not signed in; run `smartlight login` first")
	}
	return errors.New(failure.Message(err, fallback))
}

func writeLamps(w io.Writer, lamps []model.Lamp) error {
	sorted := append([]model.Lamp(nil), lamps...)
	model.SortByID(sorted)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Room < sorted[j].Room })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROOM\tSTATUS\tCONNECTION")
	for _, lamp := range sorted {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", lamp.ID, lamp.Name, lamp.Room, onOff(lamp.Status), online(lamp.Connection))
	}
	return tw.Flush()
}

func writeStatus(w io.Writer, apiBaseURL string, authenticated bool) {
	state := "signed out"
	if authenticated {
		state = "signed in"
	}
	fmt.Fprintf(w, "backend: %s\nsession: %s\n", apiBaseURL, state)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func online(connected bool) string {
	if connected {
		return "online"
	}
	return "offline"
}
