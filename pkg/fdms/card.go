package fdms

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrCard = errors.New("fdms: card data error")

type CardInfo struct {
	PAN    string
	Expiry string
}

// Hash identifies a card without keeping the PAN: uppercase hex MD5 of "PAN:expiry".
func (c CardInfo) Hash() string {
	sum := md5.Sum([]byte(c.PAN + ":" + c.Expiry))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ParseTrack extracts PAN and expiry from track-1 or track-2 magstripe data.
func ParseTrack(track string) (CardInfo, error) {
	if strings.HasPrefix(track, "%") {
		return parseTrack1(track)
	}
	return parseTrack2(track)
}

// %B4393410316009875^NAME/ SURNAME^1706...
func parseTrack1(track string) (CardInfo, error) {
	if len(track) < 2 {
		return CardInfo{}, fmt.Errorf("%w: track 1 too short", ErrCard)
	}
	body := track[2:]
	first := strings.IndexByte(body, '^')
	if first < 0 {
		return CardInfo{}, fmt.Errorf("%w: track 1 PAN separator not found", ErrCard)
	}
	second := strings.IndexByte(body[first+1:], '^')
	if second < 0 {
		return CardInfo{}, fmt.Errorf("%w: track 1 name separator not found", ErrCard)
	}
	exp := first + 1 + second + 1
	if exp+4 > len(body) {
		return CardInfo{}, fmt.Errorf("%w: track 1 expiry truncated", ErrCard)
	}
	return CardInfo{PAN: body[:first], Expiry: body[exp : exp+4]}, nil
}

// ;4393410316009875=1706...?
func parseTrack2(track string) (CardInfo, error) {
	body := strings.TrimPrefix(track, ";")
	sep := strings.IndexByte(body, '=')
	if sep < 0 {
		return CardInfo{}, fmt.Errorf("%w: track 2 separator not found", ErrCard)
	}
	if sep+5 > len(body) {
		return CardInfo{}, fmt.Errorf("%w: track 2 expiry truncated", ErrCard)
	}
	return CardInfo{PAN: body[:sep], Expiry: body[sep+1 : sep+5]}, nil
}

func KeyedCard(account, expiry string) (CardInfo, error) {
	if account == "" {
		return CardInfo{}, fmt.Errorf("%w: account number missing", ErrCard)
	}
	return CardInfo{PAN: account, Expiry: expiry}, nil
}
