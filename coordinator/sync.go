// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/event"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/passkit"
	"github.com/blinklabs-io/passsync/stripimage"
	"github.com/blinklabs-io/passsync/walletobjects"
)

// customerState holds the records every per-customer sync reads
type customerState struct {
	customer *loyalty.Customer
	business *loyalty.Business
	design   *loyalty.CardDesign
}

func (c *Coordinator) loadCustomer(
	ctx context.Context,
	customerID string,
) (*customerState, error) {
	customer, err := c.db.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	business, err := c.db.GetBusiness(ctx, customer.BusinessID)
	if err != nil {
		return nil, err
	}
	design, err := c.db.GetActiveDesign(ctx, customer.BusinessID)
	if err != nil {
		return nil, err
	}
	return &customerState{
		customer: customer,
		business: business,
		design:   design,
	}, nil
}

func bothFailed(err error) SyncResult {
	return SyncResult{PassKit: failed(err), WalletObjects: failed(err)}
}

func bothSkipped(reason error) SyncResult {
	return SyncResult{PassKit: skipped(reason), WalletObjects: skipped(reason)}
}

// OnCustomerCreated returns the add-to-wallet links of a new customer. No
// registration exists yet on either platform, so nothing is pushed.
func (c *Coordinator) OnCustomerCreated(
	ctx context.Context,
	customerID string,
) (*WalletUrls, error) {
	return c.walletUrls(ctx, event.CustomerCreatedEventType, customerID)
}

// GetWalletUrls returns the add-to-wallet links of a customer. The error is
// only set when the customer's records cannot be loaded; per-platform
// failures are reported in the result.
func (c *Coordinator) GetWalletUrls(
	ctx context.Context,
	customerID string,
) (*WalletUrls, error) {
	return c.walletUrls(ctx, "wallet.urls", customerID)
}

func (c *Coordinator) walletUrls(
	ctx context.Context,
	trigger event.EventType,
	customerID string,
) (*WalletUrls, error) {
	state, err := c.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	ret := &WalletUrls{}
	var passKitFn, walletFn platformFunc
	if c.certs != nil && c.publicURL != "" {
		passKitFn = func(ctx context.Context) PlatformResult {
			material, err := c.certs.Resolve(ctx, state.business.ID)
			if err != nil {
				return failed(fmt.Errorf("resolve certificate: %w", err))
			}
			ret.PassKit = c.passURL(material.PassTypeIdentifier, state.customer)
			return ok(0, 0)
		}
	}
	if c.signer != nil {
		walletFn = func(ctx context.Context) PlatformResult {
			class, object, err := c.walletPayloads(ctx, state)
			if err != nil {
				return failed(err)
			}
			saveURL, err := c.signer.SaveURL(class, object)
			if err != nil {
				return failed(fmt.Errorf("sign save token: %w", err))
			}
			ret.WalletObjects = saveURL
			return ok(0, 0)
		}
	}
	ret.Result = c.sync(ctx, trigger, customerID, passKitFn, walletFn)
	return ret, nil
}

// passURL is the download link served by the web service
func (c *Coordinator) passURL(passTypeIdentifier string, customer *loyalty.Customer) string {
	return fmt.Sprintf(
		"%s/v1/passes/%s/%s?token=%s",
		strings.TrimRight(c.publicURL, "/"),
		url.PathEscape(passTypeIdentifier),
		url.PathEscape(customer.ID),
		url.QueryEscape(customer.AuthToken),
	)
}

func (c *Coordinator) walletPayloads(
	ctx context.Context,
	state *customerState,
) (*walletobjects.ClassPayload, *walletobjects.ObjectPayload, error) {
	class, err := c.classPayload(ctx, state.design, state.business)
	if err != nil {
		return nil, nil, err
	}
	object, err := c.objectPayload(ctx, state.customer, state.design)
	if err != nil {
		return nil, nil, err
	}
	return class, object, nil
}

func (c *Coordinator) classPayload(
	ctx context.Context,
	design *loyalty.CardDesign,
	business *loyalty.Business,
) (*walletobjects.ClassPayload, error) {
	logoURL, err := c.stripURL(ctx, design, 0, stripimage.WalletObjectsLogo.Name)
	if err != nil {
		return nil, err
	}
	heroURL, err := c.stripURL(ctx, design, 0, stripimage.WalletObjectsHero.Name)
	if err != nil {
		return nil, err
	}
	return walletobjects.ClassFromDesign(c.issuerID, design, business, logoURL, heroURL)
}

func (c *Coordinator) objectPayload(
	ctx context.Context,
	customer *loyalty.Customer,
	design *loyalty.CardDesign,
) (*walletobjects.ObjectPayload, error) {
	heroURL, err := c.stripURL(
		ctx,
		design,
		design.ClampStamps(customer.StampCount),
		stripimage.WalletObjectsHero.Name,
	)
	if err != nil {
		return nil, err
	}
	return walletobjects.ObjectFromCustomer(c.issuerID, customer, design, heroURL)
}

// OnStampMutated syncs a customer whose stamp count changed from
// previousCount. The mutation is already committed; the result only
// describes the wallet sync.
func (c *Coordinator) OnStampMutated(
	ctx context.Context,
	customerID string,
	previousCount int,
) SyncResult {
	state, err := c.loadCustomer(ctx, customerID)
	if err != nil {
		return bothFailed(err)
	}
	var passKitFn, walletFn platformFunc
	if c.passKitEnabled() {
		passKitFn = func(ctx context.Context) PlatformResult {
			return c.refreshCustomerPasses(ctx, state)
		}
	}
	if c.walletEnabled() {
		walletFn = func(ctx context.Context) PlatformResult {
			return c.updateObject(ctx, state, previousCount)
		}
	}
	return c.sync(ctx, event.StampMutatedEventType, customerID, passKitFn, walletFn)
}

func (c *Coordinator) refreshCustomerPasses(
	ctx context.Context,
	state *customerState,
) PlatformResult {
	regs, err := c.db.RegistrationsForCustomer(ctx, state.customer.ID, loyalty.PlatformPassKit)
	if err != nil {
		return failed(err)
	}
	if len(regs) == 0 {
		// Not installed on any device
		return skipped(nil)
	}
	if err := c.db.TouchCustomerPasses(ctx, state.customer.ID, c.now()); err != nil {
		return failed(err)
	}
	return c.pushRegistrations(ctx, state.business.ID, regs)
}

// pushTokens returns the distinct push tokens of registrations made for
// passTypeIdentifier. Registrations of another pass type cannot be reached
// with the current identity and are counted as stale.
func pushTokens(regs []models.WalletRegistration, passTypeIdentifier string) ([]string, int) {
	seen := make(map[string]struct{}, len(regs))
	tokens := make([]string, 0, len(regs))
	stale := 0
	for _, reg := range regs {
		if reg.PushToken == "" {
			continue
		}
		if reg.PassTypeIdentifier != "" && reg.PassTypeIdentifier != passTypeIdentifier {
			stale++
			continue
		}
		if _, ok := seen[reg.PushToken]; ok {
			continue
		}
		seen[reg.PushToken] = struct{}{}
		tokens = append(tokens, reg.PushToken)
	}
	return tokens, stale
}

func (c *Coordinator) pushRegistrations(
	ctx context.Context,
	businessID string,
	regs []models.WalletRegistration,
) PlatformResult {
	material, err := c.certs.Resolve(ctx, businessID)
	if err != nil {
		return failed(fmt.Errorf("resolve certificate: %w", err))
	}
	tokens, stale := pushTokens(regs, material.PassTypeIdentifier)
	if stale > 0 {
		c.logger.Warn(
			"registrations use a different pass type identifier",
			"component", "coordinator",
			"business_id", businessID,
			"pass_type_identifier", material.PassTypeIdentifier,
			"stale", stale,
		)
	}
	result, err := c.dispatcher.Dispatch(ctx, material, tokens)
	if err != nil {
		ret := failed(fmt.Errorf("dispatch: %w", err))
		ret.Failed = result.Failed + stale
		return ret
	}
	ret := ok(result.Success, result.Failed+stale)
	if result.Success == 0 && ret.Failed > 0 {
		ret.Status = StatusFailed
		ret.Error = "no device accepted the refresh push"
	}
	return ret
}

func (c *Coordinator) updateObject(
	ctx context.Context,
	state *customerState,
	previousCount int,
) PlatformResult {
	design := state.design
	object, err := c.objectPayload(ctx, state.customer, design)
	if err != nil {
		return failed(err)
	}
	if err := c.wallet.PatchObject(ctx, object); err != nil {
		if errors.Is(err, walletobjects.ErrNotFound) {
			// Never saved by the customer
			return skipped(nil)
		}
		return failed(fmt.Errorf("patch object: %w", err))
	}
	prev := design.ClampStamps(previousCount)
	next := design.ClampStamps(state.customer.StampCount)
	if c.throttle == nil || prev == next {
		return ok(1, 0)
	}
	err = c.throttle.Decide(ctx, object.ID, prev, next, design.TotalStamps)
	if errors.Is(err, walletobjects.ErrThrottled) {
		return PlatformResult{Status: StatusThrottled, Notified: 1}
	}
	if err != nil {
		return failed(fmt.Errorf("throttle: %w", err))
	}
	msg := walletobjects.ProgressMessage(design, next, c.now())
	if err := c.wallet.AddMessage(ctx, object.ID, msg); err != nil {
		return failed(fmt.Errorf("add message: %w", err))
	}
	return ok(1, 0)
}

// OnDesignUpdated re-renders the strip images of a design when its visuals
// changed and, for the active design, refreshes every pass of the business
func (c *Coordinator) OnDesignUpdated(ctx context.Context, designID string) SyncResult {
	return c.syncDesign(ctx, event.DesignUpdatedEventType, designID)
}

// OnDesignActivated refreshes every pass of the business with a newly
// activated design
func (c *Coordinator) OnDesignActivated(ctx context.Context, designID string) SyncResult {
	return c.syncDesign(ctx, event.DesignActivatedEventType, designID)
}

func (c *Coordinator) syncDesign(
	ctx context.Context,
	trigger event.EventType,
	designID string,
) SyncResult {
	design, err := c.db.GetDesign(ctx, designID)
	if err != nil {
		return bothFailed(err)
	}
	// The stored image matrix must be in place before the second platform
	// is pointed at it. Pass archives render their strips inline, so a
	// failed matrix only fails the second platform.
	var renderErr error
	if err := c.EnsureStripImages(ctx, design); err != nil {
		renderErr = fmt.Errorf("render strip images: %w", err)
		c.logger.Error(
			"failed to render strip images",
			"component", "coordinator",
			"design_id", design.ID,
			"error", err,
		)
	}
	if !design.IsActive {
		if renderErr != nil {
			return bothFailed(renderErr)
		}
		return bothSkipped(ErrNotActive)
	}
	business, err := c.db.GetBusiness(ctx, design.BusinessID)
	if err != nil {
		return bothFailed(err)
	}
	var passKitFn, walletFn platformFunc
	if c.passKitEnabled() {
		passKitFn = func(ctx context.Context) PlatformResult {
			return c.refreshBusinessPasses(ctx, business.ID)
		}
	}
	if c.walletEnabled() {
		walletFn = func(ctx context.Context) PlatformResult {
			if renderErr != nil {
				return failed(renderErr)
			}
			return c.updateClass(ctx, design, business)
		}
	}
	return c.sync(ctx, trigger, designID, passKitFn, walletFn)
}

func (c *Coordinator) refreshBusinessPasses(ctx context.Context, businessID string) PlatformResult {
	regs, err := c.db.RegistrationsForBusiness(ctx, businessID, loyalty.PlatformPassKit)
	if err != nil {
		return failed(err)
	}
	if len(regs) == 0 {
		return skipped(nil)
	}
	if err := c.db.TouchBusinessPasses(ctx, businessID, c.now()); err != nil {
		return failed(err)
	}
	return c.pushRegistrations(ctx, businessID, regs)
}

// updateClass upserts the class of a business and patches every saved object
func (c *Coordinator) updateClass(
	ctx context.Context,
	design *loyalty.CardDesign,
	business *loyalty.Business,
) PlatformResult {
	class, err := c.classPayload(ctx, design, business)
	if err != nil {
		return failed(err)
	}
	if _, err := c.wallet.UpsertClass(ctx, class); err != nil {
		return failed(fmt.Errorf("upsert class: %w", err))
	}
	regs, err := c.db.RegistrationsForBusiness(ctx, business.ID, loyalty.PlatformWalletObjects)
	if err != nil {
		return failed(err)
	}
	var (
		mu       sync.Mutex
		patched  int
		failures int
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, reg := range regs {
		g.Go(func() error {
			err := c.patchRegisteredObject(gctx, design, reg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				patched++
			case errors.Is(err, walletobjects.ErrNotFound):
			default:
				failures++
				if firstErr == nil {
					firstErr = err
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	ret := ok(patched, failures)
	if patched == 0 && failures > 0 {
		ret.Status = StatusFailed
		ret.Error = firstErr.Error()
	}
	return ret
}

func (c *Coordinator) patchRegisteredObject(
	ctx context.Context,
	design *loyalty.CardDesign,
	reg models.WalletRegistration,
) error {
	customer, err := c.db.GetCustomer(ctx, reg.CustomerID)
	if err != nil {
		return err
	}
	object, err := c.objectPayload(ctx, customer, design)
	if err != nil {
		return err
	}
	err = c.wallet.PatchObject(ctx, object)
	if errors.Is(err, walletobjects.ErrNotFound) {
		// The object was removed without a delete callback reaching us
		if _, delErr := c.db.DeleteRegistration(
			ctx,
			reg.CustomerID,
			loyalty.PlatformWalletObjects,
			reg.DeviceID,
		); delErr != nil {
			c.logger.Warn(
				"failed to remove stale registration",
				"component", "coordinator",
				"object_id", reg.DeviceID,
				"error", delErr,
			)
		}
	}
	return err
}

// GeneratePass builds the signed pass archive of a customer. Unlike the
// event handlers it fails loudly.
func (c *Coordinator) GeneratePass(ctx context.Context, customerID string) ([]byte, error) {
	if c.assembler == nil || c.certs == nil {
		return nil, fmt.Errorf("passkit: %w", ErrPlatformOff)
	}
	state, err := c.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	material, err := c.certs.Resolve(ctx, state.business.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve certificate: %w", err)
	}
	return c.assembler.Assemble(
		ctx,
		passkit.AssembleRequest{
			CustomerID:   state.customer.ID,
			CustomerName: state.customer.Name,
			StampCount:   state.customer.StampCount,
			AuthToken:    state.customer.AuthToken,
			Design:       state.design,
			Business:     state.business,
		},
		material,
	)
}
