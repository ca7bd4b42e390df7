package smpp

// SMPP Command IDs
const (
	CommandGenericNack         uint32 = 0x80000000
	CommandBindReceiver        uint32 = 0x00000001
	CommandBindReceiverResp    uint32 = 0x80000001
	CommandBindTransmitter     uint32 = 0x00000002
	CommandBindTransmitterResp uint32 = 0x80000002
	CommandSubmitSM            uint32 = 0x00000004
	CommandSubmitSMResp        uint32 = 0x80000004
	CommandDeliverSM           uint32 = 0x00000005
	CommandDeliverSMResp       uint32 = 0x80000005
	CommandUnbind              uint32 = 0x00000006
	CommandUnbindResp          uint32 = 0x80000006
	CommandBindTransceiver     uint32 = 0x00000009
	CommandBindTransceiverResp uint32 = 0x80000009
	CommandEnquireLink         uint32 = 0x00000015
	CommandEnquireLinkResp     uint32 = 0x80000015
	CommandDataSM              uint32 = 0x00000103
	CommandDataSMResp          uint32 = 0x80000103
)

// SMPP Command Status Codes (subset needed)
const (
	StatusOk          uint32 = 0x00000000 // ESME_ROK
	StatusInvMsgLen   uint32 = 0x00000001 // Message length is invalid
	StatusInvCmdLen   uint32 = 0x00000002 // Command length is invalid
	StatusInvCmdID    uint32 = 0x00000003 // Invalid Command ID
	StatusInvBndSts   uint32 = 0x00000004 // Incorrect BIND status for given command
	StatusAlyBnd      uint32 = 0x00000005 // ESME already in bound state
	StatusSystemError uint32 = 0x00000008 // System Error
	StatusBindFailed  uint32 = 0x0000000D // Bind Failed
	StatusInvPasswd   uint32 = 0x0000000E // Invalid Password
	StatusInvSysID    uint32 = 0x0000000F // Invalid System ID
	StatusInvSysTyp   uint32 = 0x00000053 // Invalid system_type field
)

// Optional parameter tags.
const (
	TagReceiptedMessageID uint16 = 0x001E
	TagSarMsgRefNum       uint16 = 0x020C
	TagSarTotalSegments   uint16 = 0x020E
	TagSarSegmentSeqnum   uint16 = 0x020F
	TagMessagePayload     uint16 = 0x0424
	TagMessageState       uint16 = 0x0427
)

// esm_class bits.
const (
	EsmClassReceipt byte = 0x04
	EsmClassUDHI    byte = 0x40
)

// data_coding values.
const (
	DataCodingDefault  byte = 0x00
	DataCodingIA5      byte = 0x01
	DataCodingBinary   byte = 0x02
	DataCodingLatin1   byte = 0x03
	DataCodingBinary8  byte = 0x04
	DataCodingCyrillic byte = 0x06
	DataCodingHebrew   byte = 0x07
	DataCodingUCS2     byte = 0x08
)

// message_state values used in delivery receipts.
const (
	MessageStateDelivered byte = 2
)

const (
	HeaderLength = 16
	// MaxPDULength bounds a single PDU read from the wire.
	MaxPDULength = 64 * 1024
	// MaxShortMessageLength is the largest short_message field (sm_length is one octet).
	MaxShortMessageLength = 254
	InterfaceVersion34    = 0x34
)
