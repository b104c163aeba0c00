/*Package credentials implements a REST interface which provides SAS tokens to things

Things which cannot sign tokens themselves fetch a short-lived token here. The API
provides the following REST route:

	GET /credentials

A thing must authenticate by providing the shared secret as header "Kurbisio-Thing-Key"
and its device id as header "Kurbisio-Thing-Identifier". The device must be known to
the registry.

The returned credentials are

	device_id:	the device id
	token:		the SAS token to be used as MQTT password
	expires_at:	the expiry of the token
	username:	the MQTT user name
	client_id:	the MQTT client id
	topic:		the telemetry topic

Unknown devices get 401 Unauthorized. Things should request a new token before
expires_at.
*/
package credentials
