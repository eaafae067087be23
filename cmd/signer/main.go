package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/digitalinvoice/signer-api/internal/application/dto"
	"github.com/digitalinvoice/signer-api/internal/application/signing"
	"github.com/digitalinvoice/signer-api/internal/domain/canonical"
	"github.com/digitalinvoice/signer-api/internal/domain/repository"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/cms"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/keystore"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/memory"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/postgres"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/render"
	"github.com/digitalinvoice/signer-api/pkg/config"
	"github.com/digitalinvoice/signer-api/pkg/logger"
)

// signedArtifactOut is the JSON handed to the delivery collaborator.
type signedArtifactOut struct {
	ArtifactID      string `json:"artifact_id"`
	InvoiceNumber   string `json:"invoice_number"`
	DigestAlgorithm string `json:"digest_algorithm"`
	Digest          string `json:"digest"`
	Signature       string `json:"signature"` // detached CMS, base64 DER
	CertFingerprint string `json:"certificate_fingerprint"`
	KeyVersion      string `json:"key_version"`
	SignedAt        string `json:"signed_at"`
}

func main() {
	invoicePath := flag.String("invoice", "", "path to the invoice submission JSON")
	outDir := flag.String("out", ".", "directory for the signed artifact and XML render")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})

	if *invoicePath == "" {
		log.Fatal().Msg("usage: signer -invoice <submission.json> [-out <dir>]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	km, err := keystore.Load(cfg.Signing.CertPath, cfg.Signing.KeyPath, cfg.Signing.KeyPassphrase)
	if err != nil {
		log.Fatal().Err(err).Msg("loading key material")
	}
	keys, err := keystore.NewKeystore(km)
	if err != nil {
		log.Fatal().Err(err).Msg("initializing keystore")
	}
	defer keys.Close()

	var store repository.SignedInvoiceRepository
	if cfg.DB.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("connecting to database")
		}
		defer pool.Close()
		repo := postgres.NewSignedInvoiceRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("applying schema")
		}
		store = repo
	} else {
		log.Warn().Msg("no database configured, using in-memory store")
		store = memory.NewSignedInvoiceStore()
	}

	if cfg.Signing.RetentionYears > 0 {
		cutoff := time.Now().AddDate(-cfg.Signing.RetentionYears, 0, 0)
		purged, err := store.PurgeBefore(ctx, cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("retention purge failed")
		} else if purged > 0 {
			log.Info().Int("artifacts", purged).Time("cutoff", cutoff).Msg("purged artifacts past retention")
		}
	}

	encoder := canonical.NewEncoder(int32(cfg.Signing.QuantityScale))
	pipeline := signing.NewPipeline(encoder, cms.NewEngine(), keys, store, signing.NewAuditTrail(0), log)

	data, err := os.ReadFile(*invoicePath)
	if err != nil {
		log.Fatal().Err(err).Msg("reading submission")
	}
	var req dto.SubmitInvoiceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Fatal().Err(err).Msg("parsing submission")
	}
	inv, err := req.ToEntity()
	if err != nil {
		log.Fatal().Err(err).Msg("mapping submission")
	}

	signed, err := pipeline.Process(ctx, inv)
	if err != nil {
		log.Fatal().Err(err).Msg("signing pipeline failed")
	}

	out := signedArtifactOut{
		ArtifactID:      signed.ID(),
		InvoiceNumber:   signed.InvoiceNumber(),
		DigestAlgorithm: "SHA-256",
		Digest:          hex.EncodeToString(signed.Digest()),
		Signature:       base64.StdEncoding.EncodeToString(signed.Signature()),
		CertFingerprint: signed.CertFingerprint(),
		KeyVersion:      signed.KeyVersion(),
		SignedAt:        signed.SignedAt().Format(time.RFC3339),
	}
	artifactJSON, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encoding artifact")
	}
	artifactPath := filepath.Join(*outDir, signed.InvoiceNumber()+".signed.json")
	if err := os.WriteFile(artifactPath, artifactJSON, 0o644); err != nil {
		log.Fatal().Err(err).Msg("writing artifact")
	}

	xmlBytes, err := render.NewXMLRenderer(encoder.QuantityScale()).Render(inv, signed)
	if err != nil {
		log.Fatal().Err(err).Msg("rendering XML")
	}
	xmlPath := filepath.Join(*outDir, signed.InvoiceNumber()+".xml")
	if err := os.WriteFile(xmlPath, xmlBytes, 0o644); err != nil {
		log.Fatal().Err(err).Msg("writing XML render")
	}

	log.Info().
		Str("artifact", artifactPath).
		Str("render", xmlPath).
		Msg("invoice signed")
}
