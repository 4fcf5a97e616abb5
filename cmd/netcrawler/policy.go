package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"netcrawler/internal/policy"
)

var (
	checkAddress  string
	checkHostname string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the crawl boundary policy",
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default boundary policy if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := policy.LoadOrCreate(cfg.PolicyPath)
		if err != nil {
			return err
		}
		doc := p.Document()
		fmt.Printf("Policy %s: %d allowed subnets, %d protected devices\n",
			cfg.PolicyPath, len(doc.AllowedSubnets), len(doc.ProtectedDevices))
		return nil
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the boundary policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := policy.Load(cfg.PolicyPath)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(p.Document())
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the crawler may connect to a device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := policy.Load(cfg.PolicyPath)
		if err != nil {
			return err
		}
		d := p.IsAllowed(checkAddress, checkHostname)
		verdict := "allowed"
		if !d.Allowed {
			verdict = "denied"
		}
		fmt.Printf("%s (%s): %s, %s\n", checkHostname, checkAddress, verdict, d.Reason)
		if !d.Allowed {
			// Non-zero exit so scripts can gate on the verdict
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyInitCmd, policyShowCmd, policyCheckCmd)

	policyCheckCmd.Flags().StringVar(&checkAddress, "address", "", "device management address")
	policyCheckCmd.Flags().StringVar(&checkHostname, "hostname", "", "device hostname")
}
