/*Package hub implements the broker client side of IoT-Hub-style brokers

The client formats everything a device needs to talk to the broker: the canonical
string a SAS token signs, the SAS token itself, and the MQTT user name, client id
and telemetry topic. All methods write into caller-provided buffers and fail with
sas.ErrCapacityExceeded instead of truncating.

For a device "dev1" on hub "myhub.azure-devices.net" the strings are

	signature base:  myhub.azure-devices.net%2Fdevices%2Fdev1\n{expiry}
	password:        SharedAccessSignature sr=myhub.azure-devices.net%2Fdevices%2Fdev1&sig={signature}&se={expiry}
	user name:       myhub.azure-devices.net/dev1/?api-version=2020-09-30
	client id:       dev1
	telemetry topic: devices/dev1/messages/events/

Module identities append "/modules/{module_id}" to the resource and topic, and
"/{module_id}" to the user name and client id.
*/
package hub
