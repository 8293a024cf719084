package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lookbusy1344/gba-assembler/asm"
	"github.com/lookbusy1344/gba-assembler/config"
	"github.com/lookbusy1344/gba-assembler/dis"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"     // Version number (set by git tag at build time)
	Commit  = "unknown" // Git commit hash
	Date    = "unknown" // Build date
)

func main() {
	// glog registers -v and friends on the standard flag set
	flag.CommandLine.Parse([]string{})

	root := &cobra.Command{
		Use:           "gba-asm",
		Short:         "Assembler and disassembler for Game Boy Advance ROM images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildCommand(), disCommand(), versionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCommand() *cobra.Command {
	var (
		output     string
		listing    bool
		configPath string
		defines    []string
	)
	cmd := &cobra.Command{
		Use:   "build <file.gvasm>",
		Short: "Assemble a source file into a ROM image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configPath != "" {
				c, err := config.LoadFrom(configPath)
				if err != nil {
					return err
				}
				cfg = c
			}

			var defs []asm.Define
			for k, v := range cfg.Assemble.Defines {
				defs = append(defs, asm.Define{Key: k, Value: v})
			}
			for _, d := range defines {
				key, value, ok := strings.Cut(d, "=")
				if !ok {
					value = "1"
				}
				defs = append(defs, asm.Define{Key: key, Value: value})
			}

			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			input = filepath.ToSlash(input)

			a := asm.New(asm.OSFileSystem{}, func(s string) {
				fmt.Println(s)
			})
			result, err := a.Assemble(input, defs)
			if err != nil {
				for _, msg := range a.Errors().Strings() {
					fmt.Fprintln(os.Stderr, msg)
				}
				return fmt.Errorf("assembly failed")
			}
			for _, w := range a.Errors().Warnings {
				fmt.Fprintln(os.Stderr, w.String())
			}

			if output == "" {
				base := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
				output = base + cfg.Output.Extension
			}
			var image []byte
			for _, sec := range result.Sections {
				image = append(image, sec...)
			}
			if err := os.WriteFile(output, image, 0644); err != nil {
				return err
			}

			if listing || cfg.Output.Listing {
				for _, line := range dis.Listing(image, result.Base, !result.ARM) {
					fmt.Println(line)
				}
			}
			fmt.Printf("wrote %s (%d bytes)\n", output, len(image))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: input with the configured extension)")
	cmd.Flags().BoolVarP(&listing, "listing", "l", false, "print an address/bytes listing")
	cmd.Flags().StringVar(&configPath, "config", "", "config file path")
	cmd.Flags().StringArrayVarP(&defines, "define", "D", nil, "predefined constant key=value")
	return cmd
}

func disCommand() *cobra.Command {
	var (
		thumb       bool
		base        uint32
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "dis <file.gba>",
		Short: "Disassemble a ROM image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if interactive {
				return dis.NewViewer(image, base, thumb).Run()
			}
			for _, line := range dis.Listing(image, base, thumb) {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&thumb, "thumb", "t", false, "decode as Thumb")
	cmd.Flags().Uint32Var(&base, "base", asm.DefaultBase, "image base address")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "open the interactive viewer")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gba-asm %s\n", Version)
			if Commit != "unknown" {
				fmt.Printf("Commit: %s\n", Commit)
			}
			if Date != "unknown" {
				fmt.Printf("Built: %s\n", Date)
			}
		},
	}
}
