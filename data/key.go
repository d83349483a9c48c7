/*
Copyright 2023 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package data

import (
	"crypto/dsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var errNoPEM = errors.New("no PEM block")

// ParsePrivateKey parses a PEM-encoded private key.
func ParsePrivateKey(privateKeyPem string) (any, error) {
	block, _ := pem.Decode([]byte(privateKeyPem))
	if block == nil {
		return nil, errNoPEM
	}

	privateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// fallback for keys generated by openssl<3.0.0
		privateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
	}

	return privateKey, nil
}

// EncodePrivateKey encodes a private key as PKCS #8 PEM.
func EncodePrivateKey(key any) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ParsePublicKey parses a PEM-encoded RSA or DSA public key, in PKIX or PKCS #1 form.
func ParsePublicKey(publicKeyPem string) (any, error) {
	block, _ := pem.Decode([]byte(publicKeyPem))
	if block == nil {
		return nil, errNoPEM
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if publicKey, err = x509.ParsePKCS1PublicKey(block.Bytes); err != nil {
			return nil, err
		}
	}

	switch publicKey.(type) {
	case *rsa.PublicKey, *dsa.PublicKey:
		return publicKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %T", publicKey)
	}
}

// EncodePublicKey encodes a public key as PKIX PEM.
//
// DSA keys are not supported by [x509.MarshalPKIXPublicKey], so they're encoded by hand.
func EncodePublicKey(key any) (string, error) {
	var der []byte
	var err error
	if dsaKey, ok := key.(*dsa.PublicKey); ok {
		der, err = marshalDSAPublicKey(dsaKey)
	} else {
		der, err = x509.MarshalPKIXPublicKey(key)
	}
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
