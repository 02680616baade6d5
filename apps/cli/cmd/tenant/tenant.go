package tenantcmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/runtime"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create, inspect, delete)",
	}

	cmd.AddCommand(createCommand(), getCommand(), listCommand(), deleteCommand(), databasesCommand())
	return cmd
}

func createCommand() *cobra.Command {
	var (
		name       string
		plan       string
		ownerID    string
		ownerEmail string
		ownerName  string
		partnerID  string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant and provision its database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := service.CreateTenantInput{
				Name:  name,
				Plan:  service.Plan(plan),
				Owner: service.Owner{UserID: ownerID, Email: ownerEmail, Name: ownerName},
			}
			if partnerID != "" {
				id, err := uuid.Parse(partnerID)
				if err != nil {
					return fmt.Errorf("invalid partner id: %w", err)
				}
				input.PartnerID = &id
			}

			rt, err := runtime.Load(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, err := rt.Service(ctx)
			if err != nil {
				return err
			}

			t, err := svc.CreateTenant(ctx, input)
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}
			return runtime.PrintJSON(cmd.OutOrStdout(), t)
		},
	}

	c.Flags().StringVar(&name, "name", "", "Tenant display name")
	c.Flags().StringVar(&plan, "plan", string(service.PlanFree), "Plan (free, standard, enterprise)")
	c.Flags().StringVar(&ownerID, "owner-id", "", "Owner user id")
	c.Flags().StringVar(&ownerEmail, "owner-email", "", "Owner email")
	c.Flags().StringVar(&ownerName, "owner-name", "", "Owner full name")
	c.Flags().StringVar(&partnerID, "partner-id", "", "Partner that referred the tenant")

	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("owner-id")
	_ = c.MarkFlagRequired("owner-email")
	return c
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Print a tenant record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			rt, err := runtime.Load(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, err := rt.Service(ctx)
			if err != nil {
				return err
			}

			t, err := svc.GetTenant(ctx, id)
			if err != nil {
				return err
			}
			return runtime.PrintJSON(cmd.OutOrStdout(), t)
		},
	}
}

func listCommand() *cobra.Command {
	var status string
	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := runtime.Load(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, err := rt.Service(ctx)
			if err != nil {
				return err
			}

			var opts service.ListTenantsOptions
			if status != "" {
				st := service.Status(status)
				opts.Status = &st
			}
			tenants, err := svc.ListTenants(ctx, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range tenants {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Plan, t.Name)
			}
			return nil
		},
	}
	c.Flags().StringVar(&status, "status", "", "Only tenants with this status")
	return c
}

func deleteCommand() *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Drop a tenant database and remove its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", id)
			}

			rt, err := runtime.Load(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, err := rt.Service(ctx)
			if err != nil {
				return err
			}

			if err := svc.DeleteTenant(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deleted\n", id)
			return nil
		},
	}
	c.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return c
}

// databasesCommand lists physical tenant databases and flags the ones no tenant record points at.
func databasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List tenant databases and flag orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := runtime.Load(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			svc, err := rt.Service(ctx)
			if err != nil {
				return err
			}

			names, err := rt.Backend.Provisioner.List(ctx)
			if err != nil {
				return fmt.Errorf("list databases: %w", err)
			}
			tenants, err := svc.ListTenants(ctx, service.ListTenantsOptions{})
			if err != nil {
				return err
			}
			known := make([]string, 0, len(tenants))
			for _, t := range tenants {
				known = append(known, t.DatabaseName)
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				if !strings.HasPrefix(name, tenant.DatabasePrefix) {
					continue
				}
				state := "ok"
				if !slices.Contains(known, name) {
					state = "orphan"
				}
				fmt.Fprintf(out, "%s\t%s\n", name, state)
			}
			return nil
		},
	}
}
