package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mariks1/unipeople-notify/internal/config"
	"github.com/mariks1/unipeople-notify/internal/kafka"
	"github.com/mariks1/unipeople-notify/internal/logger"
	"github.com/mariks1/unipeople-notify/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish demo envelopes to the domain topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: "unotify-seed",
		})
		defer func() { _ = producer.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, d := range demoEnvelopes() {
			body, err := json.Marshal(d.env)
			if err != nil {
				return fmt.Errorf("marshal envelope: %w", err)
			}
			if err := producer.Publish(ctx, d.topic, []byte(d.env.EventID), body); err != nil {
				return fmt.Errorf("publish to %s: %w", d.topic, err)
			}
			logger.Log.Info("seeded envelope",
				zap.String("topic", d.topic),
				zap.String("event_type", d.env.EventType),
				zap.String("event_id", d.env.EventID))
		}

		fmt.Println(">> Seed completed")
		return nil
	},
}

type seedEnvelope struct {
	topic string
	env   model.Envelope
}

// demoEnvelopes builds a small batch covering every producing domain.
// Event ids are minted fresh on each run, so repeated seeding produces
// new events rather than duplicates.
func demoEnvelopes() []seedEnvelope {
	now := time.Now().UTC()
	entity := uuid.NewString()
	emp := uuid.NewString()

	return []seedEnvelope{
		{
			topic: "hr.employees",
			env: model.Envelope{
				EventID:    uuid.NewString(),
				EventType:  "EMPLOYEE_HIRED",
				Source:     "employee-service",
				OccurredAt: now,
				EntityID:   &entity,
				Payload:    json.RawMessage(`{"fullName":"Maria Petrova","departmentName":"Engineering"}`),
				Recipients: model.RecipientSet{Roles: []string{"HR", "ADMIN"}},
			},
		},
		{
			topic: "hr.leaves",
			env: model.Envelope{
				EventID:    uuid.NewString(),
				EventType:  "LEAVE_APPROVED",
				Source:     "leave-service",
				OccurredAt: now,
				EntityID:   &entity,
				Payload:    json.RawMessage(`{"leaveType":"annual","from":"2026-09-07","to":"2026-09-18"}`),
				Recipients: model.RecipientSet{EmployeeIDs: []string{emp}, Roles: []string{"HR"}},
			},
		},
		{
			topic: "hr.duties",
			env: model.Envelope{
				EventID:    uuid.NewString(),
				EventType:  "DUTY_ASSIGNED",
				Source:     "duty-service",
				OccurredAt: now,
				EntityID:   &entity,
				Payload:    json.RawMessage(`{"dutyName":"on-call","date":"2026-09-05"}`),
				Recipients: model.RecipientSet{EmployeeIDs: []string{emp}},
			},
		},
		{
			topic: "hr.documents",
			env: model.Envelope{
				EventID:    uuid.NewString(),
				EventType:  "DOCUMENT_EXPIRING",
				Source:     "document-service",
				OccurredAt: now,
				Payload:    json.RawMessage(`{"documentName":"work permit","expiresAt":"2026-10-01"}`),
				Recipients: model.RecipientSet{EmployeeIDs: []string{emp}, Roles: []string{"HR"}},
			},
		},
	}
}
