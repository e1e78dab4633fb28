package bounty

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/finnbear/moderation"

	"github.com/ernie/isle-tracker/internal/domain"
)

const maxReasonLength = 200

// PlaceRequest is a request to put a bounty on a player
type PlaceRequest struct {
	TargetID   string
	TargetName string
	PlacerID   string
	PlacerName string
	Reward     int64
	Reason     string
}

// PlaceContract validates and stores a new contract. Rewards below the
// configured minimum and self-targeted contracts are rejected. No points are
// held from the placer.
func (e *Engine) PlaceContract(ctx context.Context, req PlaceRequest) (*domain.Contract, error) {
	req.TargetID = strings.TrimSpace(req.TargetID)
	req.PlacerID = strings.TrimSpace(req.PlacerID)

	if req.TargetID == "" {
		return nil, &domain.InvalidContractError{Reason: "target is required"}
	}
	if req.PlacerID == "" {
		return nil, &domain.InvalidContractError{Reason: "placer is required"}
	}
	if req.PlacerID == req.TargetID {
		return nil, &domain.InvalidContractError{Reason: "cannot place a contract on yourself"}
	}
	if req.Reward < e.cfg.MinContractReward {
		return nil, &domain.InvalidContractError{
			Reason: fmt.Sprintf("reward must be at least %d", e.cfg.MinContractReward),
		}
	}

	reason, err := cleanReason(req.Reason)
	if err != nil {
		return nil, err
	}

	if req.TargetName == "" {
		req.TargetName = e.displayName(ctx, req.TargetID)
	}
	if req.PlacerName == "" {
		req.PlacerName = e.displayName(ctx, req.PlacerID)
	}

	now := e.opts.Now()
	expires := now.Add(e.cfg.ContractTTL)
	c := &domain.Contract{
		TargetID:   req.TargetID,
		TargetName: req.TargetName,
		Reward:     req.Reward,
		PlacerID:   req.PlacerID,
		PlacerName: req.PlacerName,
		Reason:     reason,
		ExpiresAt:  &expires,
		CreatedAt:  now,
	}
	if err := e.store.InsertContract(ctx, c); err != nil {
		return nil, err
	}

	log.Printf("Contract #%d placed on %s by %s (%d points)", c.ID, c.TargetName, c.PlacerName, c.Reward)
	e.publishContract(ctx, *c)
	return c, nil
}

// CancelContract withdraws an active contract. Only its placer may cancel.
func (e *Engine) CancelContract(ctx context.Context, id int64, requesterID string) (*domain.Contract, error) {
	c, err := e.store.CancelContract(ctx, id, requesterID, e.opts.Now())
	if err != nil {
		return nil, err
	}
	e.publishContract(ctx, *c)
	return c, nil
}

// CompleteContracts settles every live contract on targetID in favour of
// the killer and returns the contracts that changed.
func (e *Engine) CompleteContracts(ctx context.Context, targetID, killerID, killerName string) ([]domain.Contract, error) {
	completed, err := e.store.CompleteContracts(ctx, targetID, killerID, killerName, e.opts.Now())
	if err != nil {
		return nil, err
	}
	if len(completed) > 0 {
		e.syncBalance(ctx, killerID)
	}
	for _, c := range completed {
		e.publishContract(ctx, c)
	}
	return completed, nil
}

// ActiveBounties returns live contracts, biggest reward first
func (e *Engine) ActiveBounties(ctx context.Context) ([]domain.Contract, error) {
	return e.store.ActiveContracts(ctx, e.opts.Now())
}

// MyContracts returns the contracts a player placed and the ones on them
func (e *Engine) MyContracts(ctx context.Context, playerID string) (*domain.MyContracts, error) {
	placed, err := e.store.ContractsPlacedBy(ctx, playerID)
	if err != nil {
		return nil, err
	}
	targeting, err := e.store.ContractsTargeting(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &domain.MyContracts{Placed: placed, Targeting: targeting}, nil
}

// BountyLocations pairs each live contract with its target's position when
// the target is online. Targets not on the server are left out.
func (e *Engine) BountyLocations(ctx context.Context) ([]domain.BountyLocation, error) {
	if e.opts.Players == nil {
		return nil, nil
	}
	contracts, err := e.store.ActiveContracts(ctx, e.opts.Now())
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, nil
	}

	res, err := e.opts.Players.Players(ctx)
	if err != nil {
		return nil, err
	}
	online := make(map[string]domain.PlayerRecord, len(res.Data))
	for _, p := range res.Data {
		online[p.PlayerID] = p
	}

	var out []domain.BountyLocation
	for _, c := range contracts {
		if p, ok := online[c.TargetID]; ok {
			out = append(out, domain.BountyLocation{Contract: c, Player: p})
		}
	}
	return out, nil
}

func (e *Engine) displayName(ctx context.Context, playerID string) string {
	if a, err := e.store.GetAccount(ctx, playerID); err == nil && a.Name != "" {
		return a.Name
	}
	return playerID
}

// cleanReason trims and length-limits a contract reason. Severely
// inappropriate text is rejected, milder text is censored.
func cleanReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		reason = string([]rune(reason)[:maxReasonLength])
	}
	if reason == "" {
		return "", nil
	}

	result := moderation.Scan(reason)
	if result.Is(moderation.Inappropriate & moderation.Severe) {
		return "", &domain.InvalidContractError{Reason: "reason contains inappropriate language"}
	}
	if result.Is(moderation.Inappropriate) {
		reason, _ = moderation.Censor(reason, moderation.Inappropriate)
	}
	return reason, nil
}
