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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/stripimage"
)

type renderFlags struct {
	total      int
	count      int
	out        string
	platform   string
	resolution string
	stampIcon  string
	rewardIcon string
	colors     loyalty.Colors
}

func renderSize(platform string, resolution string) (stripimage.Size, error) {
	sizes, ok := stripimage.PlatformSizes[loyalty.Platform(platform)]
	if !ok {
		return stripimage.Size{}, fmt.Errorf("unknown platform: %s", platform)
	}
	if resolution == "" {
		return sizes[0], nil
	}
	for _, size := range sizes {
		if size.Name == resolution {
			return size, nil
		}
	}
	return stripimage.Size{}, fmt.Errorf(
		"unknown resolution %q for platform %s",
		resolution,
		platform,
	)
}

func renderRun(flags *renderFlags) error {
	size, err := renderSize(flags.platform, flags.resolution)
	if err != nil {
		return err
	}
	generator := stripimage.NewGenerator(stripimage.WithLogger(slog.Default()))
	data, err := generator.Render(
		flags.count,
		stripimage.Config{
			TotalStamps: flags.total,
			Colors:      flags.colors,
			StampIcon:   flags.stampIcon,
			RewardIcon:  flags.rewardIcon,
		},
		size,
	)
	if err != nil {
		return err
	}
	return os.WriteFile(flags.out, data, 0o644)
}

func renderCommand() *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one strip image to a PNG file",
		Run: func(cmd *cobra.Command, args []string) {
			if err := renderRun(flags); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("wrote %s\n", flags.out)
		},
	}
	cmd.Flags().IntVar(&flags.total, "total", 10, "total stamps on the card")
	cmd.Flags().IntVar(&flags.count, "count", 0, "filled stamps")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "strip.png", "output file")
	cmd.Flags().StringVar(&flags.platform, "platform", string(loyalty.PlatformPassKit), "platform to size the image for")
	cmd.Flags().StringVar(&flags.resolution, "resolution", "", "resolution name (default is the platform's first size)")
	cmd.Flags().StringVar(&flags.stampIcon, "stamp-icon", stripimage.IconStar, "built-in stamp icon")
	cmd.Flags().StringVar(&flags.rewardIcon, "reward-icon", stripimage.IconGift, "built-in reward icon")
	cmd.Flags().StringVar(&flags.colors.Background, "background", "", "background color")
	cmd.Flags().StringVar(&flags.colors.StampFilled, "stamp-filled", "", "filled stamp color")
	cmd.Flags().StringVar(&flags.colors.StampEmpty, "stamp-empty", "", "empty stamp color")
	cmd.Flags().StringVar(&flags.colors.Accent, "accent", "", "reward stamp color")
	return cmd
}
