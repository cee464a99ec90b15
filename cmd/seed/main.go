// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: every insert skips rows that already exist.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"insiderwatch/backend/internal/config"
	"insiderwatch/backend/internal/db"
)

const (
	devOrgID     = "6f1c2a9e-3b7d-4c1e-9a55-0d2f8b7e4c10"
	devOrgName   = "DTAA Dev"
	devOrgDomain = "dtaa.com"
	managerEmail = "security@dtaa.com"
)

type employee struct {
	id, name, email, role, supervisor, pc string
	shared                                string
	flagged                               bool
}

type pc struct {
	id, ip, mac string
}

var (
	pcs = []pc{
		{id: "PC-6377", ip: "192.168.1.101", mac: "00:1a:2b:3c:4d:01"},
		{id: "PC-2948", ip: "192.168.1.102", mac: "00:1a:2b:3c:4d:02"},
		{id: "PC-1011", ip: "192.168.1.103", mac: "00:1a:2b:3c:4d:03"},
		{id: "PC-3212", ip: "192.168.1.104", mac: "00:1a:2b:3c:4d:04"},
	}
	employees = []employee{
		{id: "ACM2278", name: "Abigail Moss", email: "Abigail.Moss@dtaa.com", role: "Salesman", supervisor: "CMP2946", pc: "PC-6377", shared: `["PC-1011"]`, flagged: true},
		{id: "CMP2946", name: "Cedric Price", email: "Cedric.Price@dtaa.com", role: "Manager", pc: "PC-2948", shared: `[]`},
		{id: "HJB0462", name: "Holly Brown", email: "Holly.Brown@dtaa.com", role: "ITAdmin", supervisor: "CMP2946", pc: "PC-1011", shared: `["PC-3212"]`},
		{id: "BTL0226", name: "Boris Lane", email: "Boris.Lane@dtaa.com", role: "Engineer", supervisor: "CMP2946", pc: "PC-3212", shared: `[]`},
	}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	inserted := 0
	err = db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		exec := func(what, query string, args ...any) error {
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("%s: %w", what, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
			return nil
		}

		if err := exec("organization", `
			INSERT INTO organizations (organization_id, name, email_domain)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			devOrgID, devOrgName, devOrgDomain); err != nil {
			return err
		}
		if err := exec("security manager", `
			INSERT INTO security_managers (manager_id, organization_id, name, email)
			VALUES ('dev-manager-001', $1, 'Dev Manager', $2) ON CONFLICT DO NOTHING`,
			devOrgID, managerEmail); err != nil {
			return err
		}
		// Supervisors are referenced by id only, so employees insert in any order.
		for _, e := range employees {
			if err := exec("employee "+e.id, `
				INSERT INTO employees (employee_id, organization_id, employee_name, email, role,
					supervisor_id, assigned_pc_id, shared_pc_ids, anomaly_flag)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8::jsonb, $9) ON CONFLICT DO NOTHING`,
				e.id, devOrgID, e.name, e.email, e.role, e.supervisor, e.pc, e.shared, e.flagged); err != nil {
				return err
			}
		}
		macs := "["
		for i, p := range pcs {
			if err := exec("pc "+p.id, `
				INSERT INTO pcs (pc_id, organization_id, ip_address, mac_address)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				p.id, devOrgID, p.ip, p.mac); err != nil {
				return err
			}
			if i > 0 {
				macs += ","
			}
			macs += fmt.Sprintf("%q", p.mac)
		}
		macs += "]"
		return exec("router", `
			INSERT INTO routers (router_id, organization_id, control_ip, state, connected_mac_addresses)
			VALUES (1, $1, '192.168.1.1', 'UP', $2::jsonb) ON CONFLICT DO NOTHING`,
			devOrgID, macs)
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	if inserted == 0 {
		log.Println("Seed already applied. Skipping.")
		return
	}
	log.Printf("Seed completed successfully (%d rows).", inserted)
	fmt.Printf("Organization: %s (%s)\n", devOrgName, devOrgID)
	fmt.Printf("Flagged employee: ACM2278 on PC-6377\n")
}
