/*Package mqtt provides an IoT broker which authenticates devices with SAS tokens

Devices connect with

	client id:	{device_id}
	user name:	{hostname}/{device_id}/?api-version=2020-09-30
	password:	SharedAccessSignature sr={hostname}%2Fdevices%2F{device_id}&sig=...&se=...

The token must be signed with the device's key from the registry and must not be
expired. Module identities use "{device_id}/{module_id}" as client id.

Once connected, a device may publish telemetry to

	devices/{device_id}/messages/events/...

and subscribe to cloud-to-device messages on

	devices/{device_id}/messages/devicebound/#

Messages published after the token expired are dropped. Devices are expected to
reconnect with a fresh token before that.
*/
package mqtt
