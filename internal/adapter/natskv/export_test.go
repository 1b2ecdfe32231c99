package natskv

var EncodeKeyForTest = encodeKey
