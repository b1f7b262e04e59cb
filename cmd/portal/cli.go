package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-portal/internal/availability"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/booking"
	"github.com/jwalitptl/clinic-portal/internal/service/event"
	"github.com/jwalitptl/clinic-portal/internal/service/medhistory"
	"github.com/jwalitptl/clinic-portal/internal/session"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

// cliSessionID is the only session the CLI keeps in its session file.
const cliSessionID = "cli"

type eventRecord = event.Received

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError turns an error into the message a user should read.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.As(err); ok && appErr.Redirect == session.LoginPath {
		return fmt.Errorf("%s: run `portal login` first", apperrors.UserMessage(err))
	}
	return fmt.Errorf("%s", apperrors.UserMessage(err))
}

// withSession runs fn with the stored CLI session.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app, sess *session.Session) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, storeFile)
	if err != nil {
		return err
	}
	defer a.Close()
	sess, err := a.sessions.Get(ctx, cliSessionID)
	if err != nil {
		return userError(err)
	}
	return userError(fn(ctx, a, sess))
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the clinic API and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("PORTAL_PASSWORD")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, storeFile)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.sessions.LoginWithID(ctx, cliSessionID, email, password)
			if err != nil {
				return userError(err)
			}
			user, _ := sess.User()
			fmt.Printf("Logged in as %s (%s)\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password (or PORTAL_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, storeFile)
			if err != nil {
				return err
			}
			defer a.Close()
			sess, err := a.sessions.Get(ctx, cliSessionID)
			if err != nil {
				fmt.Println("Not logged in")
				return nil
			}
			sess.Logout(ctx)
			fmt.Println("Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user, revalidating the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				ok, err := sess.CheckAuth(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.Unauthorized(nil)
				}
				user, _ := sess.User()
				return printJSON(user)
			})
		},
	}
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List a doctor's free time slots on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			date, _ := cmd.Flags().GetString("date")
			duration, _ := cmd.Flags().GetInt("duration")
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				slots, err := sess.Client().Availability.Slots(ctx, doctorID, model.NormalizeDate(date), duration)
				if err != nil {
					return err
				}
				picker := availability.GroupSlots(slots)
				if picker.Empty {
					fmt.Println(picker.Message)
					return nil
				}
				for _, g := range picker.Groups {
					times := make([]string, 0, len(g.Slots))
					for _, s := range g.Slots {
						times = append(times, s.Time)
					}
					fmt.Printf("%-10s %s\n", g.Period, strings.Join(times, " "))
				}
				return nil
			})
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", "", "Date, YYYY-MM-DD")
	cmd.Flags().Int("duration", 30, "Slot length in minutes")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

// bookCmd drives the booking wizard end to end from flags. Each step runs
// the same checks as the web flow.
func bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			serviceID, _ := cmd.Flags().GetString("service")
			date, _ := cmd.Flags().GetString("date")
			hhmm, _ := cmd.Flags().GetString("time")
			reason, _ := cmd.Flags().GetString("reason")
			notes, _ := cmd.Flags().GetString("notes")

			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				svc := booking.NewService(booking.Config{
					DateSource: a.cfg.Booking.DateSource,
					WindowDays: a.cfg.Booking.WindowDays,
					WizardTTL:  a.cfg.Booking.WizardTTL,
				}, a.events, a.validate, a.log, a.metrics)

				w, err := svc.Start(ctx, sess)
				if err != nil {
					return err
				}
				defer svc.Discard(sess.ID(), w.ID())

				if err := w.SelectDoctor(ctx, doctorID); err != nil {
					return err
				}
				if err := w.SelectService(ctx, serviceID); err != nil {
					return err
				}
				if err := w.SelectDate(ctx, model.NormalizeDate(date)); err != nil {
					return err
				}
				if err := w.SelectSlot(hhmm); err != nil {
					return err
				}
				if err := w.SubmitReason(booking.ReasonForm{ReasonForVisit: reason, Notes: notes}); err != nil {
					return err
				}
				appt, err := w.Confirm(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Appointment %s booked for %s %s\n", appt.ID, appt.Date(), model.TruncateTime(appt.AppointmentTime))
				return nil
			})
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("service", "", "Medical service id")
	cmd.Flags().String("date", "", "Date, YYYY-MM-DD")
	cmd.Flags().String("time", "", "Slot start, HH:MM")
	cmd.Flags().String("reason", "", "Reason for the visit")
	cmd.Flags().String("notes", "", "Additional notes")
	for _, f := range []string{"doctor", "service", "date", "time", "reason"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Work with AI generated medical histories",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List medical histories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetString("patient")
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				list, err := medhistory.NewService(a.events, a.validate, a.log).List(ctx, sess, patientID)
				if err != nil {
					return err
				}
				return printJSON(list)
			})
		},
	}
	listCmd.Flags().String("patient", "", "Patient id (staff only)")
	cmd.AddCommand(listCmd)

	downloadCmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save the PDF of a medical history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename, _ := cmd.Flags().GetString("filename")
			dir, _ := cmd.Flags().GetString("dir")
			return withSession(cmd, func(ctx context.Context, a *app, sess *session.Session) error {
				dl, err := medhistory.NewService(a.events, a.validate, a.log).Download(ctx, sess, args[0], filename)
				if err != nil {
					return err
				}
				path := filepath.Join(dir, filepath.Base(dl.Filename))
				if err := os.WriteFile(path, dl.Data, 0o600); err != nil {
					return fmt.Errorf("failed to save %s: %w", path, err)
				}
				fmt.Printf("Saved %s (%d bytes)\n", path, len(dl.Data))
				return nil
			})
		},
	}
	downloadCmd.Flags().String("filename", "", "File name, default Historial_Medico_<date>.pdf")
	downloadCmd.Flags().String("dir", ".", "Directory to save into")
	cmd.AddCommand(downloadCmd)

	return cmd
}

// eventsCmd prints portal events as they are published. It needs the
// redis broker to see events from other processes.
func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Portal domain events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print events as JSON lines until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, storeFile)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Redis.URL == "" {
				return fmt.Errorf("events tail needs redis.url (PORTAL_REDIS_URL)")
			}
			enc := json.NewEncoder(os.Stdout)
			return a.events.Listen(ctx, func(ev eventRecord) {
				if err := enc.Encode(ev); err != nil {
					a.log.Error(err, "failed to print event")
				}
			})
		},
	})
	return cmd
}
