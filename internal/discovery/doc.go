// ABOUTME: Local network discovery of live agent gateways
// ABOUTME: Browses mDNS when no endpoint is configured
// Package discovery finds a live agent gateway on the local network.
//
// Gateways advertise _livetalk._tcp with an optional path= TXT record.
package discovery
