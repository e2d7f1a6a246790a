// Package intake issues signed upload intents for direct-to-storage video
// uploads and ingests the resulting storage notifications exactly once.
//
// # Minting
//
// A Signer binds an authenticated user to a freshly generated object key,
// nonce and expiry, signs the tuple with HMAC-SHA256 and asks an Authorizer
// (see the storage/s3 subpackage) for a presigned PUT URL or POST policy that
// forces the same values into the object's metadata:
//
//	signer, err := intake.NewSigner(
//	    intake.WithSecret(secret),
//	    intake.WithAuthorizer(backend),
//	)
//	grant, err := signer.Mint(ctx, userID)
//
// # Ingestion
//
// An Ingestor handles "object created" notifications. For every object it
// reads the metadata, verifies the signature and expiry, claims the object
// key in a ClaimLedger, consumes one unit from the user's QuotaGate and only
// then hands a Job to the Dispatcher:
//
//	ingestor := intake.NewIngestor(backend, verifier, ledger, ledger, dispatcher)
//	outcomes, err := ingestor.HandleBatch(ctx, notifications)
//
// Verification failures, duplicates and exhausted quotas are terminal skips.
// Only infrastructure failures are returned as errors so that an
// at-least-once notification source redelivers the event.
//
// Quota units are never refunded: a unit consumed for an upload whose
// processing later fails stays spent.
package intake
