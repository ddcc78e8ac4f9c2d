// ABOUTME: Ban records stored as the BanInfo typed record
// ABOUTME: Creates, reads, summarizes and clears bans with display-zone reason text

package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/profile"
)

// Reason texts used when the caller gives none.
const (
	DefaultBanReason   = "None Reason"
	PermanentBanReason = "Ban To: Forever"
	PermanentEndText   = "永久封禁"
	displayLayout      = "2006-01-02 15:04:05"
)

// BanInfo is the record the game server checks on connect. A nil To is permanent.
type BanInfo struct {
	UID    string     `msgpack:"UID" json:"UID"`
	Name   string     `msgpack:"Name" json:"Name"`
	Reason string     `msgpack:"Reason" json:"Reason"`
	From   *time.Time `msgpack:"From" json:"From"`
	To     *time.Time `msgpack:"To" json:"To"`
}

// Permanent reports whether the ban has no end.
func (b *BanInfo) Permanent() bool { return b.To == nil }

// BanSummary is the display form of a ban.
type BanSummary struct {
	Reason    string `json:"Reason"`
	StartTime string `json:"StartTime"`
	EndTime   string `json:"EndTime"`
}

type nameRecord struct {
	Name string `msgpack:"Name"`
}

// displayName prefers the stored BasicUserInfo record and falls back to the profile file.
func (s *Service) displayName(ctx context.Context, uid string) (string, error) {
	var rec nameRecord
	found, err := s.store.GetTypedRecord(ctx, uid, RecordBasicUserInfo, &rec)
	if err != nil {
		s.logger.Warn("reading BasicUserInfo record failed", "uid", uid, "error", err)
	}
	if found && rec.Name != "" {
		return rec.Name, nil
	}
	info, err := s.profiles.Load(uid)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// BanUser writes a ban for uid, replacing any previous one. Zero minutes and
// days ban permanently. An empty reason is synthesized from the end time.
func (s *Service) BanUser(ctx context.Context, uid string, minutes, days int, reason string) (*BanInfo, error) {
	if minutes < 0 || days < 0 {
		return nil, fmt.Errorf("%w: minutes=%d days=%d", ErrInvalidDuration, minutes, days)
	}
	name, err := s.displayName(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("banning %s: %w", uid, err)
	}
	if reason == "" {
		reason = DefaultBanReason
	}

	now := s.now().UTC()
	ban := &BanInfo{UID: uid, Name: name, Reason: reason, From: &now}
	if minutes == 0 && days == 0 {
		if reason == DefaultBanReason {
			ban.Reason = PermanentBanReason
		}
	} else {
		to := now.Add(time.Duration(minutes)*time.Minute + time.Duration(days)*24*time.Hour)
		ban.To = &to
		if reason == DefaultBanReason {
			ban.Reason = "Ban To: " + to.In(s.zone).Format(displayLayout)
		}
	}

	if err := s.store.UpsertTypedRecord(ctx, uid, RecordBanInfo, ban); err != nil {
		s.logger.Error("ban failed", "uid", uid, "error", err)
		return nil, err
	}
	s.logger.Info("user banned", "uid", uid, "reason", ban.Reason, "permanent", ban.Permanent())
	return ban, nil
}

// GetBanInfo returns the ban of uid, or nil when there is none.
func (s *Service) GetBanInfo(ctx context.Context, uid string) (*BanInfo, error) {
	var ban BanInfo
	found, err := s.store.GetTypedRecord(ctx, uid, RecordBanInfo, &ban)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &ban, nil
}

// Summarize formats ban times in the display zone.
func (s *Service) Summarize(ban *BanInfo) *BanSummary {
	out := &BanSummary{Reason: ban.Reason, EndTime: PermanentEndText}
	if ban.From != nil {
		out.StartTime = ban.From.In(s.zone).Format(displayLayout)
	}
	if ban.To != nil {
		out.EndTime = ban.To.In(s.zone).Format(displayLayout)
	}
	return out
}

// BanSummary returns the display form of the ban of uid, or nil when there is none.
func (s *Service) BanSummary(ctx context.Context, uid string) (*BanSummary, error) {
	ban, err := s.GetBanInfo(ctx, uid)
	if err != nil || ban == nil {
		return nil, err
	}
	return s.Summarize(ban), nil
}

// ClearBan deletes the ban of uid. It reports false without error when uid was not banned.
func (s *Service) ClearBan(ctx context.Context, uid string) (bool, error) {
	cleared, err := s.store.DeleteTypedRecord(ctx, uid, RecordBanInfo)
	if err != nil {
		s.logger.Error("clearing ban failed", "uid", uid, "error", err)
		return false, err
	}
	if cleared {
		s.logger.Info("ban cleared", "uid", uid)
	}
	return cleared, nil
}

// isMissingUser reports errors that mean uid has no profile.
func isMissingUser(err error) bool {
	return errors.Is(err, profile.ErrNoProfile) || errors.Is(err, profile.ErrInvalidUID)
}
