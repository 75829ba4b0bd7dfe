package fhe

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"sync"
	"time"

	"confidential_rps/internal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const decryptDomain = "rps/fhe/decrypt/v1"

// Receiver is the inbound side of a decryption request.
type Receiver interface {
	FulfillDecryption(ctx context.Context, f Fulfillment) error
}

// DecryptionRequest asks the oracle to reveal Handles held by Contract.
type DecryptionRequest struct {
	ID       uuid.UUID
	Contract common.Address
	Handles  []Handle
	Callback Receiver
}

// Fulfillment carries the cleartexts for a request, signed by the oracle.
type Fulfillment struct {
	RequestID  uuid.UUID     `json:"request_id"`
	Handles    []Handle      `json:"handles"`
	Cleartexts []uint64      `json:"cleartexts"`
	Signature  hexutil.Bytes `json:"signature"`
}

// Oracle accepts decryption requests and answers them later, on its own
// schedule, through the request callback.
type Oracle interface {
	Submit(ctx context.Context, req DecryptionRequest) error
	Address() common.Address
}

func fulfillmentDigest(f Fulfillment) []byte {
	parts := make([][]byte, 0, 2+len(f.Handles)+len(f.Cleartexts))
	id := f.RequestID
	parts = append(parts, []byte(decryptDomain), id[:])
	for _, h := range f.Handles {
		parts = append(parts, h.Bytes())
	}
	for _, c := range f.Cleartexts {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], c)
		parts = append(parts, b[:])
	}
	return crypto.Keccak256(parts...)
}

// SignFulfillment fills f.Signature using key.
func SignFulfillment(f *Fulfillment, key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(fulfillmentDigest(*f), key)
	if err != nil {
		return errors.Wrap(err, "sign fulfillment")
	}
	f.Signature = sig
	return nil
}

// VerifyFulfillment checks that f was signed by signer.
func VerifyFulfillment(f Fulfillment, signer common.Address) error {
	if len(f.Handles) != len(f.Cleartexts) {
		return errors.Wrapf(ErrMalformedResult, "%d handles, %d cleartexts", len(f.Handles), len(f.Cleartexts))
	}
	if len(f.Signature) != signatureLen {
		return errors.Wrapf(ErrBadSignature, "signature length %d", len(f.Signature))
	}
	pub, err := crypto.SigToPub(fulfillmentDigest(f), f.Signature)
	if err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}
	if got := crypto.PubkeyToAddress(*pub); got != signer {
		return errors.Wrapf(ErrBadSignature, "signed by %s", got.Hex())
	}
	return nil
}

// OracleConfig tunes the local oracle.
type OracleConfig struct {
	Workers             int
	QueueSize           int
	Delay               time.Duration
	MaxDeliveryAttempts int
	RetryBackoff        time.Duration
}

func (c *OracleConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxDeliveryAttempts <= 0 {
		c.MaxDeliveryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// LocalOracle decrypts through the runtime on worker goroutines and calls
// back after Delay.
type LocalOracle struct {
	rt      *Runtime
	key     *ecdsa.PrivateKey
	address common.Address
	cfg     OracleConfig

	queue  chan DecryptionRequest
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewLocalOracle(rt *Runtime, cfg OracleConfig) (*LocalOracle, error) {
	cfg.setDefaults()
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate oracle key")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalOracle{
		rt:      rt,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		cfg:     cfg,
		queue:   make(chan DecryptionRequest, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (o *LocalOracle) Address() common.Address { return o.address }

// Start launches the workers. Calling it more than once has no effect.
func (o *LocalOracle) Start() {
	o.startOnce.Do(func() {
		for i := 0; i < o.cfg.Workers; i++ {
			o.wg.Add(1)
			go o.worker(i)
		}
		logger.Info("oracle started", "workers", o.cfg.Workers, "delay", o.cfg.Delay, "signer", o.address.Hex())
	})
}

// Stop abandons queued requests and waits for workers to exit.
func (o *LocalOracle) Stop() {
	o.stopOnce.Do(func() {
		o.cancel()
		o.wg.Wait()
		logger.Info("oracle stopped")
	})
}

// Submit enqueues req. It returns once the request is queued, not when it
// is answered.
func (o *LocalOracle) Submit(ctx context.Context, req DecryptionRequest) error {
	if len(req.Handles) == 0 {
		return errors.New("decryption request has no handles")
	}
	if req.Callback == nil {
		return errors.New("decryption request has no callback")
	}
	if req.ID == uuid.Nil {
		return errors.New("decryption request has no id")
	}

	select {
	case <-o.ctx.Done():
		return ErrOracleStopped
	default:
	}

	select {
	case o.queue <- req:
		logger.Debug("oracle request queued", "request_id", req.ID, "contract", req.Contract.Hex(), "handles", len(req.Handles))
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "submit decryption request")
	case <-o.ctx.Done():
		return ErrOracleStopped
	}
}

func (o *LocalOracle) worker(n int) {
	defer o.wg.Done()
	for {
		select {
		case req := <-o.queue:
			o.process(req)
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *LocalOracle) process(req DecryptionRequest) {
	log := logger.With("component", "oracle", "request_id", req.ID, "contract", req.Contract.Hex())

	if o.cfg.Delay > 0 {
		timer := time.NewTimer(o.cfg.Delay)
		select {
		case <-timer.C:
		case <-o.ctx.Done():
			timer.Stop()
			return
		}
	}

	f, err := o.Decrypt(req)
	if err != nil {
		// The requester stays in its pending state; there is no abort path.
		log.Error("oracle refused request", "error", err)
		return
	}

	for attempt := 1; attempt <= o.cfg.MaxDeliveryAttempts; attempt++ {
		err = req.Callback.FulfillDecryption(o.ctx, f)
		if err == nil {
			log.Info("oracle fulfilled request", "attempt", attempt)
			return
		}
		if !isTemporary(err) {
			log.Warn("oracle callback rejected", "error", err)
			return
		}
		log.Warn("oracle callback failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-time.After(o.cfg.RetryBackoff * time.Duration(attempt)):
		case <-o.ctx.Done():
			return
		}
	}
	log.Error("oracle gave up delivering fulfillment", "attempts", o.cfg.MaxDeliveryAttempts)
}

// Decrypt builds the signed fulfillment for req without delivering it.
// The contract must hold ACL rights on every handle.
func (o *LocalOracle) Decrypt(req DecryptionRequest) (Fulfillment, error) {
	f := Fulfillment{
		RequestID:  req.ID,
		Handles:    append([]Handle(nil), req.Handles...),
		Cleartexts: make([]uint64, len(req.Handles)),
	}
	for i, h := range req.Handles {
		if !o.rt.IsAllowed(h, req.Contract) {
			return Fulfillment{}, errors.Wrapf(ErrAccessDenied, "contract %s on %s", req.Contract.Hex(), h)
		}
		v, err := o.rt.decrypt(h)
		if err != nil {
			return Fulfillment{}, err
		}
		f.Cleartexts[i] = uint64(v)
	}
	if err := SignFulfillment(&f, o.key); err != nil {
		return Fulfillment{}, err
	}
	return f, nil
}

type temporary interface {
	Temporary() bool
}

func isTemporary(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}
