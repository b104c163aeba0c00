/*Package iot groups the IoT functionality around shared access signature tokens

	sas          token generation on the device, token verification on the broker
	hub          the broker client formatting canonical strings, passwords, user names and topics
	renewal      keeps a device's token fresh
	status       console and logger sinks for connection status and telemetry
	registry     device keys for the server side
	mqtt         MQTT broker which authenticates devices by SAS token
	credentials  REST API issuing tokens to things

*/
package iot
