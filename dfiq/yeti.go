/*
Timesketch Analyzer Engine - Collaborative Forensic Timelines
Copyright (C) 2026 Timesketch Authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dfiq

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Velocidex/json"
	"github.com/hashicorp/go-retryablehttp"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/config"
)

const max_yeti_response = 50 * 1024 * 1024

func yetiClient(config_obj *config.Config) (
	*retryablehttp.Client, error) {

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	cert_path := config_obj.DFIQ.YetiTlsCertificate
	if cert_path != "" && strings.HasPrefix(
		config_obj.DFIQ.YetiApiRoot, "https://") {

		pem, err := os.ReadFile(cert_path)
		if err != nil {
			return nil, err
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, analyzers.ConfigErrorf(
				"no certificates found in %s", cert_path)
		}

		client.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	}
	return client, nil
}

// yetiToken trades the configured API key for a bearer token.
func yetiToken(client *retryablehttp.Client,
	config_obj *config.Config) (string, error) {

	req, err := retryablehttp.NewRequest("POST",
		config_obj.DFIQ.YetiApiRoot+"/auth/api-token", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("x-yeti-apikey", config_obj.DFIQ.YetiApiKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"error %d authenticating with knowledge service",
			resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", err
	}

	token := struct {
		AccessToken string `json:"access_token"`
	}{}
	err = json.Unmarshal(body, &token)
	if err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf(
			"knowledge service returned no access token")
	}
	return token.AccessToken, nil
}

// fetchYetiCatalog pulls every DFIQ object the knowledge service
// knows about and returns the raw YAML documents.
func fetchYetiCatalog(config_obj *config.Config) ([]string, error) {
	if config_obj.DFIQ.YetiApiRoot == "" {
		return nil, analyzers.ConfigErrorf(
			"no yeti_api_root configured")
	}

	client, err := yetiClient(config_obj)
	if err != nil {
		return nil, err
	}

	token, err := yetiToken(client, config_obj)
	if err != nil {
		return nil, err
	}

	query, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"name": ""},
		"count": 0,
	})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequest("POST",
		config_obj.DFIQ.YetiApiRoot+"/dfiq/search",
		bytes.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"error %d fetching DFIQ from knowledge service",
			resp.StatusCode)
	}

	body, err := io.ReadAll(
		io.LimitReader(resp.Body, max_yeti_response))
	if err != nil {
		return nil, err
	}

	payload := struct {
		DFIQ []struct {
			DFIQYaml string `json:"dfiq_yaml"`
		} `json:"dfiq"`
	}{}
	err = json.Unmarshal(body, &payload)
	if err != nil {
		return nil, err
	}

	result := []string{}
	for _, object := range payload.DFIQ {
		if object.DFIQYaml != "" {
			result = append(result, object.DFIQYaml)
		}
	}
	return result, nil
}
