package main

import (
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
	"github.com/nathanieltooley/pocketbot/rendering"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	headless       bool
	screenshotPath string
	fetchArt       bool
)

// runCmd plays battles until stopped
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Play battles",
	Long: `Play battles one after another. With --headless the bot runs without the
operator console: unknown cards are skipped instead of asked about, and
Ctrl+C stops the bot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !headless {
			return runConsole(cmd.Context())
		}

		b, err := newBot(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		log.Info().Msg("running headless, stop with Ctrl+C")
		return b.orchestrator(headlessOperator{}, logObserver{}).Run(cmd.Context())
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices adb can see",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := newSession().ListDevices(cmd.Context())
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no devices found")
			return nil
		}

		rows := lo.Map(devices, func(d engine.DeviceInfo, _ int) []string {
			return []string{d.ID, d.State, d.Type}
		})
		fmt.Println(newTable("SERIAL", "STATE", "TYPE").Rows(rows...))
		return nil
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Save a screenshot of the device",
	Long:  "Save a screenshot of the device as PNG, useful for cutting new cue templates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		session := newSession()
		if !session.ConnectAndEnsureReady(cmd.Context()) {
			return engine.ErrDeviceUnavailable
		}

		img, err := session.Screenshot(cmd.Context())
		if err != nil {
			return err
		}

		f, err := os.Create(screenshotPath)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := png.Encode(f, img); err != nil {
			return err
		}

		log.Info().Str("path", screenshotPath).Str("serial", session.Serial()).Msg("screenshot saved")
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the card catalog",
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the card catalog again",
	RunE: func(cmd *cobra.Command, args []string) error {
		cards := newCatalog()
		if err := cards.Refresh(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("%d cards cached in %s\n", cards.Len(), global.Opt.CatalogCachePath)
		return nil
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Find cards whose name contains the text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cards := newCatalog()
		if err := cards.Load(cmd.Context()); err != nil {
			return err
		}

		matches := cards.ByNameSubstring(strings.Join(args, " "))
		if len(matches) == 0 {
			fmt.Println("no cards found")
			return nil
		}

		if fetchArt {
			ids := lo.Map(matches, func(a engine.CardAttrs, _ int) string { return a.ID })
			if err := cards.PrefetchArt(cmd.Context(), ids); err != nil {
				log.Warn().Err(err).Msg("some card art could not be downloaded")
			}
		}

		rows := lo.Map(matches, func(a engine.CardAttrs, _ int) []string {
			return []string{
				a.ID,
				a.Name,
				stageName(a),
				a.EvolvesFrom,
				fmt.Sprint(a.Energies),
				a.SetName,
				a.Rarity,
			}
		})
		fmt.Println(newTable("ID", "NAME", "STAGE", "EVOLVES FROM", "ENERGY", "SET", "RARITY").Rows(rows...))
		return nil
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Work with layout profiles",
}

var layoutDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the layout in effect as YAML, a starting point for a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, err := global.LoadLayout(global.Opt.LayoutPath)
		if err != nil {
			return err
		}

		contents, err := global.MarshalLayout(layout)
		if err != nil {
			return err
		}

		fmt.Print(string(contents))
		return nil
	},
}

var layoutCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a layout profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := global.LoadLayout(args[0]); err != nil {
			return err
		}

		fmt.Printf("%s is valid\n", args[0])
		return nil
	},
}

func stageName(a engine.CardAttrs) string {
	if a.IsItemCard {
		return "Trainer"
	}

	switch a.Stage {
	case engine.STAGE_1:
		return "Stage 1"
	case engine.STAGE_2:
		return "Stage 2"
	}
	return "Basic"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(rendering.MutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return rendering.TitleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

func init() {
	runCmd.Flags().BoolVar(&headless, "headless", false, "Run without the operator console")
	screenshotCmd.Flags().StringVarP(&screenshotPath, "output", "o", "screenshot.png", "Where to write the PNG")
	catalogSearchCmd.Flags().BoolVar(&fetchArt, "art", false, "Also download the art of every match into the art cache")

	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	layoutCmd.AddCommand(layoutDumpCmd)
	layoutCmd.AddCommand(layoutCheckCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(screenshotCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(layoutCmd)
}
