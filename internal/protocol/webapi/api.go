// ABOUTME: Request/response calls against the oicq-webapi HTTP surface
// ABOUTME: Enumeration, self info, send, revoke and request handling

package webapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/samber/lo"

	"github.com/2389/coven-bot/internal/contact"
	"github.com/2389/coven-bot/internal/transport"
)

// decode checks the content type and status of resp and unmarshals it into v.
func decode[T any](resp *transport.Response, endpoint string, v *T, code func(*T) status) error {
	if !resp.IsJSON() {
		return fmt.Errorf("%w from %s: content type %q", ErrUnexpectedResponse, endpoint, resp.ContentType)
	}
	if err := resp.JSON(v); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrUnexpectedResponse, endpoint, err)
	}
	if st := code(v); st.Code != 0 {
		return fmt.Errorf("%w %d on %s: %s", ErrRemoteStatus, st.Code, endpoint, st.Message)
	}
	return nil
}

func fetchList[T any](ctx context.Context, a *Adapter, endpoint string, query url.Values) ([]T, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	resp, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	var body listResponse[T]
	if err := decode(resp, endpoint, &body, func(b *listResponse[T]) status { return b.Status }); err != nil {
		return nil, err
	}
	return body.List, nil
}

func (a *Adapter) call(ctx context.Context, endpoint string, req any) (string, error) {
	c, err := a.client()
	if err != nil {
		return "", err
	}
	resp, err := c.PostJSON(ctx, endpoint, req)
	if err != nil {
		return "", fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	var body callResponse
	if err := decode(resp, endpoint, &body, func(b *callResponse) status { return b.Status }); err != nil {
		return "", err
	}
	return body.MsgID, nil
}

func (a *Adapter) Friends(ctx context.Context) (map[int64]string, error) {
	list, err := fetchList[friendEntry](ctx, a, "/user/getFriendList", nil)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(list, func(f friendEntry) (int64, string) {
		return f.ID, f.Nickname
	}), nil
}

func (a *Adapter) Groups(ctx context.Context) (map[int64]string, error) {
	list, err := fetchList[groupEntry](ctx, a, "/user/getGroupList", nil)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(list, func(g groupEntry) (int64, string) {
		return g.ID, g.Name
	}), nil
}

// GroupMembers prefers a member's group alias over their nickname.
func (a *Adapter) GroupMembers(ctx context.Context, groupID int64) (map[int64]string, error) {
	query := url.Values{"group": {strconv.FormatInt(groupID, 10)}}
	list, err := fetchList[memberEntry](ctx, a, "/group/getMemberList", query)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(list, func(m memberEntry) (int64, string) {
		return m.ID, m.displayName()
	}), nil
}

func (a *Adapter) Self(ctx context.Context) (int64, string, error) {
	const endpoint = "/user/getBasicInfo"
	c, err := a.client()
	if err != nil {
		return 0, "", err
	}
	resp, err := c.Get(ctx, endpoint, nil)
	if err != nil {
		return 0, "", fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	var info basicInfo
	if err := decode(resp, endpoint, &info, func(b *basicInfo) status { return b.Status }); err != nil {
		return 0, "", err
	}
	return info.ID, info.Nickname, nil
}

func wireContent(content contact.Content) []wireSegment {
	return lo.Map(content, func(s contact.Segment, _ int) wireSegment { return fromSegment(s) })
}

func (a *Adapter) SendPrivate(ctx context.Context, to contact.PrivateTarget, content contact.Content, reply *contact.Reply) (string, error) {
	return a.call(ctx, "/user/sendMsg", sendRequest{
		Dest:    to.UserID,
		Via:     to.ViaGroup,
		Content: wireContent(content),
		Reply:   fromReply(reply),
	})
}

func (a *Adapter) SendGroup(ctx context.Context, groupID int64, content contact.Content, reply *contact.Reply) (string, error) {
	return a.call(ctx, "/group/sendMsg", sendRequest{
		Dest:    groupID,
		Content: wireContent(content),
		Reply:   fromReply(reply),
	})
}

func (a *Adapter) RevokePrivate(ctx context.Context, userID int64, messageID string) error {
	_, err := a.call(ctx, "/user/revokeMsg", revokeRequest{Dest: userID, MsgID: messageID})
	return err
}

func (a *Adapter) RevokeGroup(ctx context.Context, groupID int64, messageID string) error {
	_, err := a.call(ctx, "/group/revokeMsg", revokeRequest{Dest: groupID, MsgID: messageID})
	return err
}

func (a *Adapter) DealFriendRequest(ctx context.Context, userID int64, eventID string, accept bool) error {
	_, err := a.call(ctx, "/user/dealFriendRequest", dealRequest{Subject: userID, EventID: eventID, Accept: accept})
	return err
}

func (a *Adapter) DealGroupInvitation(ctx context.Context, inviterID int64, eventID string, accept bool) error {
	_, err := a.call(ctx, "/user/dealGroupInvitation", dealRequest{Subject: inviterID, EventID: eventID, Accept: accept})
	return err
}

func (a *Adapter) DealGroupJoinRequest(ctx context.Context, groupID int64, eventID string, accept bool) error {
	_, err := a.call(ctx, "/group/dealJoinRequest", dealRequest{Subject: groupID, EventID: eventID, Accept: accept})
	return err
}
