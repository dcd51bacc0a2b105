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

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/stripimage"
)

const stripContentType = "image/png"

// EnsureStripImages renders the strip image matrix of a design unless the
// stored set already matches its visual config
func (c *Coordinator) EnsureStripImages(
	ctx context.Context,
	design *loyalty.CardDesign,
) error {
	current, err := c.db.StripImagesCurrent(ctx, design)
	if err != nil {
		return err
	}
	if current {
		return nil
	}
	return c.RenderStripImages(ctx, design)
}

// RenderStripImages renders every stamp count of a design for every platform
// resolution, plus the placeholder program logo, and replaces the stored set
// in one transaction. Concurrent calls for the same design share one render.
func (c *Coordinator) RenderStripImages(
	ctx context.Context,
	design *loyalty.CardDesign,
) error {
	key := design.ID + "/" + design.VisualHash()
	_, err, _ := c.strips.Do(key, func() (any, error) {
		err := c.renderStripImages(ctx, design)
		if err != nil {
			c.metrics.stripRenders.WithLabelValues("failed").Inc()
			return nil, err
		}
		c.metrics.stripRenders.WithLabelValues("ok").Inc()
		return nil, nil
	})
	return err
}

type stripJob struct {
	platform loyalty.Platform
	size     stripimage.Size
	count    int
}

func stripJobs(design *loyalty.CardDesign) []stripJob {
	var ret []stripJob
	for _, platform := range loyalty.Platforms {
		for _, size := range stripimage.PlatformSizes[platform] {
			for count := 0; count <= design.TotalStamps; count++ {
				ret = append(ret, stripJob{platform: platform, size: size, count: count})
			}
		}
	}
	return ret
}

func (c *Coordinator) renderStripImages(
	ctx context.Context,
	design *loyalty.CardDesign,
) error {
	if err := design.Validate(); err != nil {
		return err
	}
	cfg := stripimage.ConfigFromDesign(
		design,
		c.fetchAsset(ctx, design.CustomStampIconURL, "stamp icon"),
		c.fetchAsset(ctx, design.StripBackgroundURL, "strip background"),
	)
	visualHash := design.VisualHash()
	// Every render gets fresh asset keys so the previous set stays intact
	// until the new records commit
	generation := uuid.NewString()
	assetKey := func(platform loyalty.Platform, resolution string, count int) string {
		return fmt.Sprintf(
			"strips/%s/%s/%s-%s-%d.png",
			design.ID,
			generation,
			platform,
			resolution,
			count,
		)
	}
	jobs := stripJobs(design)
	txn := c.db.Transaction(ctx, true)
	return txn.Do(func(txn *database.Txn) error {
		records := make([]models.StripImageRecord, len(jobs)+1)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.renderers)
		for i, job := range jobs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := c.generator.Render(job.count, cfg, job.size)
				if err != nil {
					return fmt.Errorf("render %s %s: %w", job.platform, job.size.Name, err)
				}
				key := assetKey(job.platform, job.size.Name, job.count)
				url, err := txn.PutAsset(key, data, stripContentType)
				if err != nil {
					return fmt.Errorf("upload %s: %w", key, err)
				}
				records[i] = models.StripImageRecord{
					Platform:   string(job.platform),
					Resolution: job.size.Name,
					StampCount: job.count,
					AssetKey:   key,
					URL:        url,
					VisualHash: visualHash,
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		logo, err := stripimage.RenderIcon(
			design.StampIcon,
			design.Colors,
			stripimage.WalletObjectsLogo,
		)
		if err != nil {
			return fmt.Errorf("render logo: %w", err)
		}
		logoKey := assetKey(loyalty.PlatformWalletObjects, stripimage.WalletObjectsLogo.Name, 0)
		logoURL, err := txn.PutAsset(logoKey, logo, stripContentType)
		if err != nil {
			return fmt.Errorf("upload %s: %w", logoKey, err)
		}
		records[len(jobs)] = models.StripImageRecord{
			Platform:   string(loyalty.PlatformWalletObjects),
			Resolution: stripimage.WalletObjectsLogo.Name,
			AssetKey:   logoKey,
			URL:        logoURL,
			VisualHash: visualHash,
		}
		if err := c.db.ReplaceStripImages(txn, design.ID, records); err != nil {
			return err
		}
		c.logger.Debug(
			"rendered strip image matrix",
			"component", "coordinator",
			"design_id", design.ID,
			"images", len(records),
		)
		return nil
	})
}

func (c *Coordinator) fetchAsset(ctx context.Context, url string, what string) []byte {
	if url == "" {
		return nil
	}
	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Warn(
			"failed to fetch custom asset, using built-in",
			"component", "coordinator",
			"asset", what,
			"url", url,
			"error", err,
		)
		return nil
	}
	return data
}

// stripURL returns the stored image of a design variant, rendering the
// matrix first when it is missing or stale
func (c *Coordinator) stripURL(
	ctx context.Context,
	design *loyalty.CardDesign,
	count int,
	resolution string,
) (string, error) {
	if err := c.EnsureStripImages(ctx, design); err != nil {
		return "", err
	}
	url, err := c.db.StripImageURL(
		ctx,
		design.ID,
		count,
		loyalty.PlatformWalletObjects,
		resolution,
	)
	if errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("no %s image for design %s at %d stamps", resolution, design.ID, count)
	}
	return url, err
}
