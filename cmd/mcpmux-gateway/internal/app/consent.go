package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mcpmux/gateway/internal/collab"
)

// terminalConsent implements collab.ConsentUI by prompting on stdin/stdout.
// Standing in for the desktop tray prompt named in internal/collab until a
// shell collaborator is wired in; every confirmation is also logged so a
// headless run has an audit trail even when nobody is watching the prompt.
type terminalConsent struct {
	log *zap.Logger
	in  *bufio.Reader
}

var _ collab.ConsentUI = (*terminalConsent)(nil)

func newTerminalConsent(log *zap.Logger) *terminalConsent {
	return &terminalConsent{log: log, in: bufio.NewReader(os.Stdin)}
}

func (c *terminalConsent) ConfirmTenantSwitch(_ context.Context, clientID, fromTenantID, toTenantID string) (bool, error) {
	ok := c.ask(fmt.Sprintf("client %s wants to follow the active space change from %s to %s", clientID, fromTenantID, toTenantID))
	c.log.Info("tenant switch consent", zap.String("client_id", clientID), zap.String("from", fromTenantID), zap.String("to", toTenantID), zap.Bool("approved", ok))
	return ok, nil
}

func (c *terminalConsent) ConfirmOutboundGrant(_ context.Context, tenantID, serverID, scope string) (bool, error) {
	ok := c.ask(fmt.Sprintf("server %s in space %s requests outbound scope %q", serverID, tenantID, scope))
	c.log.Info("outbound grant consent", zap.String("tenant_id", tenantID), zap.String("server_id", serverID), zap.String("scope", scope), zap.Bool("approved", ok))
	return ok, nil
}

func (c *terminalConsent) ask(prompt string) bool {
	fmt.Fprintf(os.Stdout, "%s [y/N]: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
