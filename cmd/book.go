// File: cmd/book.go
package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/booking"
	"github.com/snabbsalud/agendabot/internal/browser"
	"github.com/snabbsalud/agendabot/internal/observability"
)

var bookFlags struct {
	document       string
	service        string
	specialty      string
	location       string
	date           string
	timeOfDay      string
	phone          string
	email          string
	screenshotFile string
}

// bookCmd runs one booking attempt from flags, no API or database involved.
// With only a specialty it stops at availability discovery; adding date, time
// and contact data drives the flow through final submission.
var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Run a one-shot booking attempt and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBook(cmd.Context())
	},
}

func init() {
	bookCmd.Flags().StringVar(&bookFlags.document, "document", "", "patient document number (RUT)")
	bookCmd.Flags().StringVar(&bookFlags.service, "service", "Consultas", "portal service card")
	bookCmd.Flags().StringVar(&bookFlags.specialty, "specialty", "", "medical specialty to search")
	bookCmd.Flags().StringVar(&bookFlags.location, "location", "", "preferred location")
	bookCmd.Flags().StringVar(&bookFlags.date, "date", "", "date descriptor to confirm (as shown by the portal)")
	bookCmd.Flags().StringVar(&bookFlags.timeOfDay, "time", "", "HH:MM slot to confirm")
	bookCmd.Flags().StringVar(&bookFlags.phone, "phone", "", "contact phone")
	bookCmd.Flags().StringVar(&bookFlags.email, "email", "", "contact email")
	bookCmd.Flags().StringVar(&bookFlags.screenshotFile, "screenshot-file", "", "write the final screenshot PNG here")
	_ = bookCmd.MarkFlagRequired("document")
	_ = bookCmd.MarkFlagRequired("specialty")
	rootCmd.AddCommand(bookCmd)
}

func runBook(ctx context.Context) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	manager := browser.NewManager(ctx, cfg, logger)
	defer manager.Shutdown(context.Background())

	factory := func(ctx context.Context) (booking.Page, error) {
		return manager.NewPage(ctx)
	}
	driver := booking.NewDriver(factory, cfg, logger)

	req := booking.Request{
		DocumentNumber: bookFlags.document,
		Service:        bookFlags.service,
		Specialty:      bookFlags.specialty,
		Location:       bookFlags.location,
		Date:           bookFlags.date,
		Time:           bookFlags.timeOfDay,
		Contact:        booking.Contact{Phone: bookFlags.phone, Email: bookFlags.email},
	}

	confirming := bookFlags.timeOfDay != "" && bookFlags.email != ""
	var res booking.Result
	if confirming {
		resumable := booking.ResumableContext{
			Service: req.Service, Specialty: req.Specialty, Location: req.Location,
		}
		res = driver.ConfirmBooking(ctx, req, resumable)
	} else {
		res = driver.StartBooking(ctx, req)
	}

	if bookFlags.screenshotFile != "" && res.Screenshot != "" {
		if err := writeScreenshot(bookFlags.screenshotFile, res.Screenshot); err != nil {
			logger.Warn("Could not write screenshot file.", zap.Error(err))
		} else {
			res.Screenshot = bookFlags.screenshotFile
		}
	}

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func writeScreenshot(path, b64 string) error {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
