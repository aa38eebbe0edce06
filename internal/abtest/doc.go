// Package abtest implements the statistical engine behind A/B traffic
// allocation: a two-proportion z-test, a normal-CDF confidence
// approximation, and the progressive weight-shifting schedule that moves
// traffic toward a leading variant as confidence grows instead of flapping
// on noise.
//
// Everything here is pure decision logic over passed-in variant counters.
// Persistence of weights and winner flags belongs to the caller (see
// worker.Optimizer), which must apply each test's update as an independent
// transaction.
package abtest
