/**
 * @description
 * External key provisioning sync. Consumes account.mutation events emitted
 * by the store outbox and keeps the rate-limiting gateway's keys and usage
 * plan associations consistent with the account record: creating keys for
 * new accounts, moving keys between plans on tier changes, replacing keys
 * on rotation (gateway keys are immutable once created), and deleting keys
 * when accounts are removed.
 *
 * @notes
 * - This sync is best-effort eventual consistency. The store mutation that
 *   triggered it already committed, so a failed gateway call is logged and
 *   the message acknowledged rather than rolled back; the next mutation on
 *   the same account re-converges the gateway. The outbox dispatcher's
 *   retry-with-backoff covers broker-side failures separately.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/keygate/keygate-backend/internal/domain"
	"github.com/keygate/keygate-backend/internal/store"
	"github.com/keygate/keygate-backend/pkg/gatewayclient"
)

// Gateway defines the interface for the rate-limiting gateway's management API.
type Gateway interface {
	CreateKey(ctx context.Context, name, value string) (string, error)
	DeleteKey(ctx context.Context, keyID string) error
	ListUsagePlans(ctx context.Context) ([]gatewayclient.UsagePlan, error)
	ListPlanKeyIDs(ctx context.Context, planID string) ([]string, error)
	AssociateKey(ctx context.Context, planID, keyID string) error
	DisassociateKey(ctx context.Context, planID, keyID string) error
}

// KeyProvisioningSync reconciles the gateway with account store mutations.
type KeyProvisioningSync struct {
	keyIDs   store.KeyIDRepository
	gateway  Gateway
	freePlan string
	paidPlan string
}

// NewKeyProvisioningSync creates a new instance of KeyProvisioningSync.
func NewKeyProvisioningSync(keyIDs store.KeyIDRepository, gateway Gateway, freePlan, paidPlan string) *KeyProvisioningSync {
	return &KeyProvisioningSync{
		keyIDs:   keyIDs,
		gateway:  gateway,
		freePlan: freePlan,
		paidPlan: paidPlan,
	}
}

// HandleAccountMutation is the consumer callback for account.mutation events.
func (s *KeyProvisioningSync) HandleAccountMutation(body []byte) bool {
	var event domain.AccountMutationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling account mutation event: %v", err)
		return true // Acknowledge; malformed messages cannot be retried.
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var err error
	switch event.EventKind {
	case domain.MutationInsert:
		if event.After == nil {
			log.Printf("INSERT mutation missing after image; dropping")
			return true
		}
		err = s.handleCreated(ctx, event.After)
	case domain.MutationModify:
		if event.Before == nil || event.After == nil {
			log.Printf("MODIFY mutation missing row images; dropping")
			return true
		}
		err = s.handleModified(ctx, event.Before, event.After)
	case domain.MutationRemove:
		if event.Before == nil {
			log.Printf("REMOVE mutation missing before image; dropping")
			return true
		}
		err = s.handleDeleted(ctx, event.Before)
	default:
		log.Printf("Unknown mutation kind %q; dropping", event.EventKind)
		return true
	}

	if err != nil {
		// Best-effort: the store mutation is already committed, so log the
		// desync and acknowledge. The next mutation re-converges the gateway.
		log.Printf("Gateway sync failed for %s mutation: %v", event.EventKind, err)
	}
	return true
}

// handleCreated provisions a brand-new gateway key for a freshly created
// account and records the gateway's id for it.
func (s *KeyProvisioningSync) handleCreated(ctx context.Context, account *domain.APIKeyAccount) error {
	keyID, err := s.gateway.CreateKey(ctx, account.UserID, account.APIKey)
	if err != nil {
		return err
	}

	planID, err := s.planIDForTier(ctx, account.Tier)
	if err != nil {
		return err
	}
	if err := s.gateway.AssociateKey(ctx, planID, keyID); err != nil {
		return err
	}

	if err := s.keyIDs.SetExternalKeyID(ctx, account.UserID, keyID); err != nil {
		return err
	}
	log.Printf("Provisioned gateway key for user %s on %s plan", account.UserID, account.Tier)
	return nil
}

// handleModified distinguishes a key rotation from a tier change. A rotation
// takes precedence: the replacement key is associated with the account's
// current tier, which also covers a simultaneous tier flip.
func (s *KeyProvisioningSync) handleModified(ctx context.Context, before, after *domain.APIKeyAccount) error {
	if before.APIKey != after.APIKey {
		return s.handleKeyRotated(ctx, after)
	}
	if before.Tier != after.Tier {
		return s.handleTierChanged(ctx, after)
	}
	// Next payment date changes need no gateway work.
	return nil
}

// handleTierChanged moves the account's gateway key to the usage plan
// matching its new tier. Membership is probed across every known plan
// rather than assumed from the previous tier, since a concurrent update may
// have left the key on a plan the before image does not predict.
func (s *KeyProvisioningSync) handleTierChanged(ctx context.Context, account *domain.APIKeyAccount) error {
	keyID, err := s.keyIDs.GetExternalKeyID(ctx, account.UserID)
	if err != nil {
		if errors.Is(err, store.ErrKeyIDNotFound) {
			// No gateway key yet; treat as a create so the account converges.
			return s.handleCreated(ctx, account)
		}
		return err
	}

	plans, err := s.gateway.ListUsagePlans(ctx)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		memberIDs, err := s.gateway.ListPlanKeyIDs(ctx, plan.ID)
		if err != nil {
			return err
		}
		for _, memberID := range memberIDs {
			if memberID == keyID {
				if err := s.gateway.DisassociateKey(ctx, plan.ID, keyID); err != nil {
					return err
				}
				break
			}
		}
	}

	planID, err := s.planIDForTier(ctx, account.Tier)
	if err != nil {
		return err
	}
	if err := s.gateway.AssociateKey(ctx, planID, keyID); err != nil {
		return err
	}
	log.Printf("Moved gateway key for user %s to %s plan", account.UserID, account.Tier)
	return nil
}

// handleKeyRotated destructively replaces the gateway key: delete the old
// key, create a new one from the rotated secret, associate it with the
// current tier's plan, and overwrite the key-id map. There is a window
// where neither key is honored; rotation is non-atomic from the gateway's
// perspective and callers are expected to tolerate it.
func (s *KeyProvisioningSync) handleKeyRotated(ctx context.Context, account *domain.APIKeyAccount) error {
	oldKeyID, err := s.keyIDs.GetExternalKeyID(ctx, account.UserID)
	if err != nil && !errors.Is(err, store.ErrKeyIDNotFound) {
		return err
	}
	if oldKeyID != "" {
		if err := s.gateway.DeleteKey(ctx, oldKeyID); err != nil {
			return err
		}
	}

	newKeyID, err := s.gateway.CreateKey(ctx, account.UserID, account.APIKey)
	if err != nil {
		return err
	}

	planID, err := s.planIDForTier(ctx, account.Tier)
	if err != nil {
		return err
	}
	if err := s.gateway.AssociateKey(ctx, planID, newKeyID); err != nil {
		return err
	}

	if err := s.keyIDs.SetExternalKeyID(ctx, account.UserID, newKeyID); err != nil {
		return err
	}
	log.Printf("Replaced gateway key for user %s after rotation", account.UserID)
	return nil
}

// handleDeleted removes the gateway key and the key-id mapping for a
// deleted account.
func (s *KeyProvisioningSync) handleDeleted(ctx context.Context, account *domain.APIKeyAccount) error {
	keyID, err := s.keyIDs.GetExternalKeyID(ctx, account.UserID)
	if err != nil {
		if errors.Is(err, store.ErrKeyIDNotFound) {
			return nil // Nothing provisioned; already converged.
		}
		return err
	}

	if err := s.gateway.DeleteKey(ctx, keyID); err != nil {
		return err
	}
	if err := s.keyIDs.DeleteExternalKeyID(ctx, account.UserID); err != nil {
		return err
	}
	log.Printf("Deleted gateway key for removed user %s", account.UserID)
	return nil
}

// planIDForTier resolves the usage plan id matching a tier by name.
func (s *KeyProvisioningSync) planIDForTier(ctx context.Context, tier domain.Tier) (string, error) {
	planName := s.freePlan
	if tier == domain.TierPaid {
		planName = s.paidPlan
	}

	plans, err := s.gateway.ListUsagePlans(ctx)
	if err != nil {
		return "", err
	}
	for _, plan := range plans {
		if plan.Name == planName {
			return plan.ID, nil
		}
	}
	return "", fmt.Errorf("usage plan %q not found on gateway", planName)
}
