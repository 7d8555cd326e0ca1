package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pablo-camprubi/salesforce-mcp/credentials"
)

// credentialFile is the YAML shape accepted by encrypt --file.
type credentialFile struct {
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SecurityToken string `yaml:"security_token"`
	InstanceURL   string `yaml:"instance_url"`
	Sandbox       bool   `yaml:"sandbox"`
}

func newEncryptCommand() *cobra.Command {
	var (
		bundlePath    string
		file          string
		username      string
		securityToken string
		instanceURL   string
		sandbox       bool
	)
	cmd := &cobra.Command{
		Use:           "encrypt",
		Short:         "mint an encrypted credential token for a caller",
		SilenceErrors: true,
		Long: `Encrypt reads Salesforce credentials and prints a transport-safe token
that callers place in the _sf_encrypted_credentials argument or the
X-Salesforce-Encrypted-Credentials header. The password is read from the
SFMCP_ENCRYPT_PASSWORD environment variable or a YAML file, never from a
flag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if strings.TrimSpace(bundlePath) == "" {
				return fmt.Errorf("--key-bundle is required")
			}
			rec := credentials.Record{
				Username:      username,
				Password:      os.Getenv("SFMCP_ENCRYPT_PASSWORD"),
				SecurityToken: securityToken,
				InstanceURL:   instanceURL,
				Sandbox:       sandbox,
			}
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read credential file: %w", err)
				}
				var parsed credentialFile
				if err := yaml.Unmarshal(raw, &parsed); err != nil {
					return fmt.Errorf("parse credential file: %w", err)
				}
				rec = credentials.Record{
					Username:      parsed.Username,
					Password:      parsed.Password,
					SecurityToken: parsed.SecurityToken,
					InstanceURL:   parsed.InstanceURL,
					Sandbox:       parsed.Sandbox,
				}
			}
			token, err := credentials.NewCodec(bundlePath).Encode(rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&bundlePath, "key-bundle", "", "path to the PEM key bundle")
	flags.StringVar(&file, "file", "", "YAML file holding the credential record (overrides the other flags)")
	flags.StringVar(&username, "username", "", "Salesforce username")
	flags.StringVar(&securityToken, "security-token", "", "Salesforce security token (appended to the password at login)")
	flags.StringVar(&instanceURL, "instance-url", "", "explicit org instance URL (skips instance discovery)")
	flags.BoolVar(&sandbox, "sandbox", false, "authenticate against the sandbox login host")
	return cmd
}
