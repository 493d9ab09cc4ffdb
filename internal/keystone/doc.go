// Package keystone issues and validates OpenStack Keystone v3 tokens over HTTP.
//
// [Client.IssueToken] performs one password authentication and is used to
// acquire the subject token for the validate scenario. [Client.IssueRequester]
// and [Client.ValidateRequester] adapt the two token calls to the
// runner.Requester interface so a ramp can drive them:
//
//	client, err := keystone.New(cfg.URL, keystone.CredentialsFromConfig(cfg.Auth),
//		keystone.WithHTTPClient(keystone.NewHTTPClient(cfg.Timeout)))
//	if err != nil {
//		return err
//	}
//	ramp := runner.NewRamp(runner.Options{Requester: client.IssueRequester()})
//
// An unexpected status is reported as a *runner.HTTPError so failure reasons
// read "HTTP 401" in the final report.
package keystone
