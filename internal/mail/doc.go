// Package mail is the outbound relay side of a campaign: provider quirks, message
// construction and the pooled, rate-limited SMTP transport a dispatch run owns.
package mail
