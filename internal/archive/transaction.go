package archive

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// StartTransaction asks the archive for a new transaction number. An empty
// or non-numeric reply yields 0; callers decide how to treat numbers <= 0.
func (c *Client) StartTransaction(ctx context.Context) (int64, error) {
	fields := append(c.credentials(), field{"action", ActionStartTransaction})
	body, err := c.postForm(ctx, ActionStartTransaction, fields)
	if err != nil {
		return 0, err
	}

	reply := strings.TrimSpace(body)
	if reply == "" {
		c.log.Warn().Msg("Did not get a transaction number")
		return 0, nil
	}
	n, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		c.log.Warn().Str("reply", reply).Msg("Transaction reply is not a number")
		return 0, nil
	}
	c.log.Info().Int64("transaction", n).Msg("Transaction started")
	return n, nil
}

// EndTransaction closes a transaction and returns the archive's reply.
func (c *Client) EndTransaction(ctx context.Context, number int64) (string, error) {
	fields := append(c.credentials(),
		field{"action", ActionEndTransaction},
		field{"transactionid", strconv.FormatInt(number, 10)},
	)
	body, err := c.postForm(ctx, ActionEndTransaction, fields)
	if err != nil {
		return body, err
	}
	c.log.Info().Int64("transaction", number).Str("reply", strings.TrimSpace(body)).Msg("Transaction ended")
	return body, nil
}

// TestConnection posts the credentials alone. ok is true when the archive
// greets the user, which is how it signals a successful login.
func (c *Client) TestConnection(ctx context.Context) (reply string, ok bool, err error) {
	form := url.Values{}
	form.Set("u", c.opts.Username)
	form.Set("p", c.opts.PasswordHash)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, &TransportError{Op: "testConnection", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, "testConnection")
	if err != nil {
		return body, false, err
	}
	reply = strings.TrimSpace(body)
	if reply == "" {
		reply = "Unable to retrieve POST response"
	}
	return reply, strings.HasPrefix(reply, "Welcome"), nil
}
