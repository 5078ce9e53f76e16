// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

// CONNACK packet reason codes
// (https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901079)
const (
	connackSuccess                     byte = 0x00
	connackMalformedPacket             byte = 0x81
	connackProtocolError               byte = 0x82
	connackImplementationSpecificError byte = 0x83
	connackUnsupportedProtocolVersion  byte = 0x84
	connackClientIdentifierNotValid    byte = 0x85
	connackBadUserNameOrPassword       byte = 0x86
	connackNotAuthorized               byte = 0x87
	connackBanned                      byte = 0x8A
	connackBadAuthenticationMethod     byte = 0x8C
	connackTopicNameInvalid            byte = 0x90
	connackPacketTooLarge              byte = 0x95
	connackPayloadFormatInvalid        byte = 0x99
	connackRetainNotSupported          byte = 0x9A
	connackQoSNotSupported             byte = 0x9B
	connackUseAnotherServer            byte = 0x9C
	connackServerMoved                 byte = 0x9D
)

// DISCONNECT packet reason codes
// (https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901208)
const (
	disconnectNormalDisconnection                 byte = 0x00
	disconnectMalformedPacket                     byte = 0x81
	disconnectProtocolError                       byte = 0x82
	disconnectNotAuthorized                       byte = 0x87
	disconnectSessionTakenOver                    byte = 0x8E
	disconnectTopicFilterInvalid                  byte = 0x8F
	disconnectTopicNameInvalid                    byte = 0x90
	disconnectTopicAliasInvalid                   byte = 0x94
	disconnectPacketTooLarge                      byte = 0x95
	disconnectPayloadFormatInvalid                byte = 0x99
	disconnectRetainNotSupported                  byte = 0x9A
	disconnectQoSNotSupported                     byte = 0x9B
	disconnectServerMoved                         byte = 0x9D
	disconnectSharedSubscriptionsNotSupported     byte = 0x9E
	disconnectSubscriptionIdentifiersNotSupported byte = 0xA1
	disconnectWildcardSubscriptionsNotSupported   byte = 0xA2
)

// SUBACK reason codes of 0x80 and above are failures.
const subackFailure byte = 0x80

const (
	defaultKeepAlive uint16 = 60
	webSocketSubprotocol    = "mqtt"
)
