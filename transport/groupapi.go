package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sentclose/sentc-go/sdkerr"
)

// GroupApi is the seam between the Group Fetch/Decrypt and Key
// Rotation engines and the network: HTTP plumbing and wire JSON shapes
// are opaque to the core, so the engines depend on this interface
// rather than on a concrete client. HttpGroupApi is the only
// implementation shipped here; tests substitute their own.
type GroupApi interface {
	FetchGroup(ctx context.Context, groupId, jwt string) (GroupOutData, error)
	FetchGroupKeyPage(ctx context.Context, groupId, jwt, lastTime, lastId string) ([]GroupKeyServerOutput, error)
	FetchGroupKey(ctx context.Context, groupId, keyId, jwt string) (GroupKeyServerOutput, error)

	PrepareKeyRotation(ctx context.Context, groupId, jwt string, in PrepareKeyRotationInput) (newGroupKeyId string, err error)
	PollPendingRotations(ctx context.Context, groupId, jwt string) ([]KeyRotationInput, error)
	FinishKeyRotation(ctx context.Context, groupId, jwt, newGroupKeyId string, encryptedNewGroupKeyByOwnKey []byte) error
}

// HttpGroupApi is the default GroupApi: plain JSON-over-HTTP through a
// caller-supplied Doer (an *http.Client in production, a scripted fake
// in tests).
type HttpGroupApi struct {
	Doer     Doer
	BaseUrl  string
	AppToken string
}

func NewHttpGroupApi(doer Doer, baseUrl, appToken string) *HttpGroupApi {
	return &HttpGroupApi{Doer: doer, BaseUrl: baseUrl, AppToken: appToken}
}

func (c *HttpGroupApi) do(ctx context.Context, method, path string, jwtStr string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return sdkerr.Newf(sdkerr.KindJsonToStringFailed, "%v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseUrl+path, reader)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	req.Header.Set("x-sentc-app-token", c.AppToken)
	if jwtStr != "" {
		req.Header.Set("Authorization", "Bearer "+jwtStr)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Doer.Do(req)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	if resp.StatusCode >= 400 {
		return sdkerr.Newf(sdkerr.KindSdk, "server error %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return sdkerr.Newf(sdkerr.KindJsonParseFailed, "%v", err)
	}
	return nil
}

func (c *HttpGroupApi) FetchGroup(ctx context.Context, groupId, jwt string) (GroupOutData, error) {
	var out GroupOutData
	err := c.do(ctx, http.MethodGet, "/group/"+groupId, jwt, nil, &out)
	return out, err
}

func (c *HttpGroupApi) FetchGroupKeyPage(ctx context.Context, groupId, jwt, lastTime, lastId string) ([]GroupKeyServerOutput, error) {
	var out []GroupKeyServerOutput
	path := fmt.Sprintf("/group/%s/keys/%s/%s", groupId, lastTime, lastId)
	err := c.do(ctx, http.MethodGet, path, jwt, nil, &out)
	return out, err
}

func (c *HttpGroupApi) FetchGroupKey(ctx context.Context, groupId, keyId, jwt string) (GroupKeyServerOutput, error) {
	var out GroupKeyServerOutput
	err := c.do(ctx, http.MethodGet, "/group/"+groupId+"/key/"+keyId, jwt, nil, &out)
	return out, err
}

// PrepareKeyRotationInput is everything the initiator computes locally
// before asking the server to open a new rotation: the new group key
// version sealed to the initiator's own current public key (so the
// initiator can fetch it back down through the ordinary
// GroupKeyServerOutput path), the new keypair's private half sealed
// under that new group key, the new public key in the clear, and the
// ephemeral-key cascade every other existing member will use to reach
// the new group key without any per-member asymmetric ciphertext.
type PrepareKeyRotationInput struct {
	EncryptedGroupKeyByOwnKey        []byte
	EncryptedPrivateGroupKeyByNewKey []byte
	PublicGroupKey                   []byte
	GroupKeyAlg                      string
	KeyPairAlg                       string
	EncryptedEphKeyByPreviousKey     []byte
	EncryptedNewGroupKeyByEphKey     []byte
	Signature                        []byte
	SignedByUserSignKeyId            string
}

type prepareKeyRotationBody struct {
	EncryptedGroupKeyByOwnKey        []byte `json:"encrypted_group_key_by_own_key"`
	EncryptedPrivateGroupKeyByNewKey []byte `json:"encrypted_private_group_key_by_new_key"`
	PublicGroupKey                   []byte `json:"public_group_key"`
	GroupKeyAlg                      string `json:"group_key_alg"`
	KeyPairAlg                       string `json:"key_pair_alg"`
	EncryptedEphKeyByPreviousKey     []byte `json:"encrypted_eph_key_by_previous_key"`
	EncryptedNewGroupKeyByEphKey     []byte `json:"encrypted_new_group_key_by_eph_key"`
	Signature                        []byte `json:"signature,omitempty"`
	SignedByUserSignKeyId            string `json:"signed_by_user_sign_key_id,omitempty"`
}

func (c *HttpGroupApi) PrepareKeyRotation(ctx context.Context, groupId, jwt string, in PrepareKeyRotationInput) (string, error) {
	var out struct {
		NewGroupKeyId string `json:"new_group_key_id"`
	}
	err := c.do(ctx, http.MethodPost, "/group/"+groupId+"/key_rotation", jwt, prepareKeyRotationBody{
		EncryptedGroupKeyByOwnKey:        in.EncryptedGroupKeyByOwnKey,
		EncryptedPrivateGroupKeyByNewKey: in.EncryptedPrivateGroupKeyByNewKey,
		PublicGroupKey:                   in.PublicGroupKey,
		GroupKeyAlg:                      in.GroupKeyAlg,
		KeyPairAlg:                       in.KeyPairAlg,
		EncryptedEphKeyByPreviousKey:     in.EncryptedEphKeyByPreviousKey,
		EncryptedNewGroupKeyByEphKey:     in.EncryptedNewGroupKeyByEphKey,
		Signature:                        in.Signature,
		SignedByUserSignKeyId:            in.SignedByUserSignKeyId,
	}, &out)
	return out.NewGroupKeyId, err
}

func (c *HttpGroupApi) PollPendingRotations(ctx context.Context, groupId, jwt string) ([]KeyRotationInput, error) {
	var out []KeyRotationInput
	err := c.do(ctx, http.MethodGet, "/group/"+groupId+"/key_rotation", jwt, nil, &out)
	return out, err
}

type finishKeyRotationBody struct {
	EncryptedNewGroupKeyByOwnKey []byte `json:"encrypted_new_group_key_by_own_key"`
}

func (c *HttpGroupApi) FinishKeyRotation(ctx context.Context, groupId, jwt, newGroupKeyId string, encryptedNewGroupKeyByOwnKey []byte) error {
	return c.do(ctx, http.MethodPut, "/group/"+groupId+"/key_rotation/"+newGroupKeyId, jwt, finishKeyRotationBody{
		EncryptedNewGroupKeyByOwnKey: encryptedNewGroupKeyByOwnKey,
	}, nil)
}
