// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"strconv"

	"github.com/waconnect/waconnect-go/internal/authstate"
)

// Field numbers for ClientPayload and its nested messages, matching the
// layout wamd's _buildClientPayloadHandshake (original_source) walks field
// by field. Picked to mirror the public WhatsApp Web protobuf schema.
const (
	fieldCPUsername      = 1
	fieldCPPassive       = 2
	fieldCPUserAgent     = 3
	fieldCPWebInfo       = 4
	fieldCPConnectType   = 12
	fieldCPConnectReason = 13
	fieldCPDevice        = 18
	fieldCPRegData       = 19

	fieldUAAppVersion               = 1
	fieldUAPlatform                 = 2
	fieldUAReleaseChannel           = 3
	fieldUAMcc                      = 4
	fieldUAMnc                      = 5
	fieldUAOsVersion                = 6
	fieldUAManufacturer             = 7
	fieldUADevice                   = 8
	fieldUAOsBuildNumber            = 9
	fieldUALocaleLanguageIso6391    = 10
	fieldUALocaleCountryIso31661A2  = 11

	fieldAppVersionPrimary   = 1
	fieldAppVersionSecondary = 2
	fieldAppVersionTertiary  = 3

	fieldWebInfoSubPlatform = 1

	fieldRegDataBuildHash      = 1
	fieldRegDataCompanionProps = 2
	fieldRegDataERegid         = 3
	fieldRegDataEKeytype       = 4
	fieldRegDataEIdent         = 5
	fieldRegDataESkeyId        = 6
	fieldRegDataESkeyVal       = 7
	fieldRegDataESkeySig       = 8

	fieldCompanionPropsOs              = 1
	fieldCompanionPropsVersion         = 2
	fieldCompanionPropsPlatformType    = 3
	fieldCompanionPropsRequireFullSync = 4
)

// BrowserKind describes the companion device identity advertised at pairing
// time (wamd's Constants.DEFAULT_BROWSER_KIND).
type BrowserKind struct {
	OS        string
	Device    string
	OSVersion string
}

// DefaultBrowserKind is the companion identity this client presents,
// following the teacher/original's "Chrome on generic Linux" default.
var DefaultBrowserKind = BrowserKind{OS: "WAConnect", Device: "Desktop", OSVersion: "10"}

// WebVersion is the [primary, secondary, tertiary] WhatsApp Web version
// triple advertised in the user agent.
type WebVersion struct {
	Primary, Secondary, Tertiary uint64
}

// DefaultWebVersion mirrors Constants.WHATSAPP_WEB_VERSION.
var DefaultWebVersion = WebVersion{Primary: 2, Secondary: 3000, Tertiary: 1015901307}

// BuildHash is the base64-decoded static build hash the original sends
// verbatim in CompanionRegData (Constants.BUILD_HASH). Populated at init
// from a fixed value; kept as a var so tests can substitute one.
var BuildHash = []byte{0x33, 0x3e, 0x76, 0x9d, 0xec, 0xee, 0x0c, 0x93, 0x89, 0x96, 0xf0, 0x55, 0x33, 0xe1, 0x3a, 0x7e}

func encodeAppVersion(v WebVersion) []byte {
	var out []byte
	out = append(out, pbEncodeVarint(fieldAppVersionPrimary, v.Primary)...)
	out = append(out, pbEncodeVarint(fieldAppVersionSecondary, v.Secondary)...)
	out = append(out, pbEncodeVarint(fieldAppVersionTertiary, v.Tertiary)...)
	return out
}

func encodeUserAgent(browser BrowserKind, version WebVersion) []byte {
	var out []byte
	out = append(out, pbEncodeBytes(fieldUAAppVersion, encodeAppVersion(version))...)
	out = append(out, pbEncodeVarint(fieldUAPlatform, 14)...)
	out = append(out, pbEncodeVarint(fieldUAReleaseChannel, 0)...)
	out = append(out, pbEncodeString(fieldUAMcc, "000")...)
	out = append(out, pbEncodeString(fieldUAMnc, "000")...)
	out = append(out, pbEncodeString(fieldUAOsVersion, browser.OSVersion)...)
	out = append(out, pbEncodeString(fieldUADevice, browser.Device)...)
	out = append(out, pbEncodeString(fieldUAOsBuildNumber, "0.1")...)
	out = append(out, pbEncodeString(fieldUALocaleLanguageIso6391, "en")...)
	out = append(out, pbEncodeString(fieldUALocaleCountryIso31661A2, "en")...)
	return out
}

// encodeWebInfo always returns an empty WebInfo message; webSubPlatform's
// only defined value so far is the proto3 default 0, which is never
// serialized on the wire, matching the original's explicit-but-no-op
// assignment.
func encodeWebInfo() []byte {
	return nil
}

func encodeCompanionProps(browser BrowserKind, version WebVersion) []byte {
	var out []byte
	out = append(out, pbEncodeString(fieldCompanionPropsOs, browser.OS)...)
	appVersion := WebVersion{Primary: 10}
	out = append(out, pbEncodeBytes(fieldCompanionPropsVersion, encodeAppVersion(appVersion))...)
	out = append(out, pbEncodeVarint(fieldCompanionPropsPlatformType, 1)...)
	// requireFullSync is false; proto3 omits it, matching the original.
	return out
}

func encodeRegData(snap authstate.Snapshot) []byte {
	var out []byte
	out = append(out, pbEncodeBytes(fieldRegDataBuildHash, BuildHash)...)
	out = append(out, pbEncodeBytes(fieldRegDataCompanionProps, encodeCompanionProps(DefaultBrowserKind, DefaultWebVersion))...)
	out = append(out, pbEncodeBytes(fieldRegDataERegid, encodeInt(uint64(snap.RegistrationID), 4))...)
	out = append(out, pbEncodeBytes(fieldRegDataEKeytype, encodeInt(5, 1))...)
	out = append(out, pbEncodeBytes(fieldRegDataEIdent, snap.SignedIdentityKey.Public[:])...)
	out = append(out, pbEncodeBytes(fieldRegDataESkeyId, encodeInt(uint64(snap.SignedPreKey.ID), 3))...)
	out = append(out, pbEncodeBytes(fieldRegDataESkeyVal, snap.SignedPreKey.KeyPair.Public[:])...)
	out = append(out, pbEncodeBytes(fieldRegDataESkeySig, snap.SignedPreKey.Signature)...)
	return out
}

// EncodeClientPayload builds the ClientPayload handshake message described
// in §4.8, switching on snap.Me: nil means no prior pairing, so this is the
// initial QR-pairing registration (passive=false, regData populated);
// non-nil means resuming a paired session (passive=true, username/device
// taken from the JID, no regData). Grounded on wamd's
// _buildClientPayloadHandshake (original_source).
func EncodeClientPayload(snap authstate.Snapshot) ([]byte, error) {
	var out []byte
	out = append(out, pbEncodeVarint(fieldCPConnectReason, 1)...)
	out = append(out, pbEncodeVarint(fieldCPConnectType, 1)...)

	if snap.Me == nil {
		out = append(out, pbEncodeBool(fieldCPPassive, false)...)
		out = append(out, pbEncodeBytes(fieldCPRegData, encodeRegData(snap))...)
	} else {
		out = append(out, pbEncodeBool(fieldCPPassive, true)...)
		user, device, err := splitJID(snap.Me.JID)
		if err != nil {
			return nil, err
		}
		username, err := strconv.ParseUint(user, 10, 64)
		if err != nil {
			return nil, &MalformedFrameError{Message: "jid has non-numeric user: " + snap.Me.JID}
		}
		out = append(out, pbEncodeVarint(fieldCPUsername, username)...)
		out = append(out, pbEncodeVarint(fieldCPDevice, uint64(device))...)
	}

	out = append(out, pbEncodeBytes(fieldCPUserAgent, encodeUserAgent(DefaultBrowserKind, DefaultWebVersion))...)
	out = append(out, pbEncodeBytes(fieldCPWebInfo, encodeWebInfo())...)
	return out, nil
}
