package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// escalationTimeout bounds the storage and notification work done from
// a timer callback. The registry's actor goroutine has no caller
// context to inherit.
const escalationTimeout = 30 * time.Second

// OnNoShowWarning is called by the timer registry at the +10 and +20
// minute marks when the pro has not checked in.
func (e *Engine) OnNoShowWarning(ctx context.Context, jobID, proID id.ID, minutesRemaining int) {
	ctx, cancel := context.WithTimeout(ctx, escalationTimeout)
	defer cancel()

	msg := fmt.Sprintf(
		"You have not checked in for job %s. Check in within %d minutes or the job will be reassigned.",
		jobID, minutesRemaining)

	if p, err := e.pros.GetPro(ctx, proID); err == nil && p.Phone != "" {
		if smsErr := e.notifier.SendSMS(ctx, p.Phone, msg); smsErr != nil {
			e.logger.Warn("no-show warning sms failed", slog.Any("error", smsErr))
		}
	}
	if e.broadcaster != nil {
		env := hub.NewEnvelope(hub.TypeNoShowWarning, hub.NoShowWarningData{
			JobID:            jobID.String(),
			MinutesRemaining: minutesRemaining,
			Message:          msg,
		})
		e.broadcaster.Broadcast(hub.RoomPro(proID.String()), env)
		e.broadcaster.Broadcast(hub.RoomJob(jobID.String()), env)
	}
	e.exts.EmitNoShowWarning(ctx, jobID, proID, minutesRemaining)

	e.logger.Info("no-show warning sent",
		slog.String("job_id", jobID.String()),
		slog.String("pro_id", proID.String()),
		slog.Int("minutes_remaining", minutesRemaining))
}

// OnDelayReview is called at the +30 mark when the pro reported a
// delay. The assignment is kept and the job is flagged for admins.
func (e *Engine) OnDelayReview(ctx context.Context, jobID, proID id.ID, reason string) {
	ctx, cancel := context.WithTimeout(ctx, escalationTimeout)
	defer cancel()

	if err := e.jobs.AppendNote(ctx, jobID, "delay reported: "+reason); err != nil {
		e.logger.Warn("delay note failed",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err))
	}

	alert := fmt.Sprintf("Delay review: job %s, pro %s reported: %s", jobID, proID, reason)
	e.alertAdmin(ctx, "No-show window closed with delay on file", alert)

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(hub.RoomJob(jobID.String()),
			hub.NewEnvelope(hub.TypeNoShowAdminReview, hub.NoShowAdminReviewData{
				JobID:  jobID.String(),
				ProID:  proID.String(),
				Reason: reason,
			}))
	}
	e.exts.EmitDelayReview(ctx, jobID, proID, reason)

	e.logger.Info("no-show window resolved to admin review",
		slog.String("job_id", jobID.String()),
		slog.String("pro_id", proID.String()))
}

// OnNoShow is called at the +30 mark with no check-in and no delay
// reason. The assignment is released for urgent reassignment, the pro
// is struck, and customer, candidate pool, and admins are told.
func (e *Engine) OnNoShow(ctx context.Context, jobID, proID id.ID) {
	ctx, cancel := context.WithTimeout(ctx, escalationTimeout)
	defer cancel()

	now := time.Now().UTC()
	released, err := e.jobs.Release(ctx, jobID, proID, now)
	if err != nil {
		// The job moved on (resolved, cancelled, reassigned) between the
		// timer firing and the release. Not an escalation.
		if errors.Is(err, dispatch.ErrInvalidState) || errors.Is(err, dispatch.ErrJobNotFound) {
			e.logger.Info("no-show release skipped, job already moved on",
				slog.String("job_id", jobID.String()))
			return
		}
		e.logger.Error("no-show release failed",
			slog.String("job_id", jobID.String()),
			slog.Any("error", err))
		return
	}

	if err := e.pros.RecordNoShow(ctx, proID, now); err != nil {
		e.logger.Warn("no-show strike failed",
			slog.String("pro_id", proID.String()),
			slog.Any("error", err))
	}

	custMsg := fmt.Sprintf(
		"Your pro didn't arrive for job %s. We're urgently finding you a replacement now.", jobID)
	if released.CustomerPhone != "" {
		if smsErr := e.notifier.SendSMS(ctx, released.CustomerPhone, custMsg); smsErr != nil {
			e.logger.Warn("no-show customer sms failed", slog.Any("error", smsErr))
		}
	}
	if released.CustomerEmail != "" {
		if mailErr := e.notifier.SendEmail(ctx, released.CustomerEmail,
			"We're finding you a new pro", custMsg); mailErr != nil {
			e.logger.Warn("no-show customer email failed", slog.Any("error", mailErr))
		}
	}

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(hub.RoomJob(jobID.String()),
			hub.NewEnvelope(hub.TypeProNoShow, hub.ProNoShowData{
				JobID:   jobID.String(),
				Message: custMsg,
			}))
		e.broadcaster.Broadcast(hub.RoomGlobal,
			hub.NewEnvelope(hub.TypeUrgentJobAvailable, hub.UrgentJobAvailableData{
				JobID:       jobID.String(),
				ServiceType: released.ServiceType,
				Address:     released.PickupAddress,
				Urgent:      true,
			}))
	}

	e.alertAdmin(ctx, "Pro no-show",
		fmt.Sprintf("Pro %s no-showed job %s. Job reopened for urgent reassignment.", proID, jobID))
	e.exts.EmitNoShowEscalated(ctx, jobID, proID)

	e.logger.Warn("pro no-show escalated",
		slog.String("job_id", jobID.String()),
		slog.String("pro_id", proID.String()))
}

func (e *Engine) alertAdmin(ctx context.Context, subject, body string) {
	if e.adminPhone != "" {
		if err := e.notifier.SendSMS(ctx, e.adminPhone, body); err != nil {
			e.logger.Warn("admin sms failed", slog.Any("error", err))
		}
	}
	if e.adminEmail != "" {
		if err := e.notifier.SendEmail(ctx, e.adminEmail, subject, body); err != nil {
			e.logger.Warn("admin email failed", slog.Any("error", err))
		}
	}
}
