// Package timeouts defines shared durations used across the onboarding
// service so HTTP, gateway and wizard timers do not drift apart.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// GatewayRequest caps a single call to the remote onboarding API.
const GatewayRequest = 10 * time.Second

// VerificationPoll is the interval between email verification checks.
const VerificationPoll = 3 * time.Second

// ResendCooldown is how long the resend action stays disabled after a
// verification email was sent.
const ResendCooldown = 60 * time.Second

// CooldownTick is the countdown refresh interval of the resend cooldown.
const CooldownTick = time.Second

// SessionIdle is how long an untouched wizard session stays in memory.
const SessionIdle = 30 * time.Minute
