package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/config"
	"smartbin-backend/internal/logger"
)

// NewFirebaseApp initializes a Firebase app from base64-encoded
// credentials when present, otherwise from the credentials file.
// Base64 is what cloud deployments (Railway, Fly.io, Render) provide.
func NewFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opt option.ClientOption
	switch {
	case cfg.CredentialsBase64 != "":
		credentialsJSON, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(credentialsJSON)
	case cfg.CredentialsFile != "":
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		return nil, errors.New("no firebase credentials configured")
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	return app, nil
}

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMService pushes alert changes to a Firebase Cloud Messaging topic.
type FCMService struct {
	client messageSender
	topic  string
	log    zerolog.Logger
}

var _ alerts.Notifier = (*FCMService)(nil)

// NewFCMService creates a topic notifier from an initialized app.
func NewFCMService(ctx context.Context, app *firebase.App, topic string) (*FCMService, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return newFCMService(client, topic), nil
}

func newFCMService(client messageSender, topic string) *FCMService {
	return &FCMService{client: client, topic: topic, log: logger.WithComponent("fcm")}
}

// NotifyAlert pushes new, escalated and resolved alerts. Refreshes and
// de-escalations stay on the dashboard only.
func (s *FCMService) NotifyAlert(ctx context.Context, outcome alerts.Outcome) error {
	if outcome.Alert == nil {
		return nil
	}

	var title string
	switch outcome.Action {
	case alerts.ActionCreated:
		title = "Bin Alert"
	case alerts.ActionEscalated:
		title = "Bin Full!"
	case alerts.ActionResolved:
		title = "Bin Emptied"
	default:
		return nil
	}

	a := outcome.Alert
	body := a.Message
	if outcome.Action == alerts.ActionResolved {
		body = fmt.Sprintf("Bin %s is back to %d%% full", a.BinID, a.PercentFull)
	}

	message := &messaging.Message{
		Topic: s.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"type":         "alert_" + string(outcome.Action),
			"alert_id":     a.ID,
			"bin_id":       a.BinID,
			"kind":         string(a.Kind),
			"percent_full": strconv.Itoa(a.PercentFull),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	s.log.Info().
		Str("bin_id", a.BinID).
		Str("action", string(outcome.Action)).
		Str("message_id", response).
		Msg("✅ FCM notification sent")
	return nil
}
